/*
Package control exposes shadowd's operational surface: an HTTP server
with /healthz, /readyz, and /metrics, plus a gRPC server carrying only
the standard health and reflection services (no shadowd-specific RPCs
are defined; the local IPC surface a caller uses to Get/Update/Delete
shadows is a separate, transport-specific concern outside this package).

The HTTP handler shape, a liveness check that only reports the process
is alive and a readiness check that probes the dependencies the service
actually needs, follows this codebase's existing health-check server.
Readiness here checks the local store and, if configured, that the
cloud client has a live connection, in place of the raft-leadership and
cluster-storage checks the equivalent server in this codebase performs.
*/
package control
