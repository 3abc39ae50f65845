/*
Package cloud implements the cloud shadow client (C8): typed Get/Update/
Delete calls against the remote shadow service, a token-bucket limiter on
outbound calls, per-shadow topic subscription bookkeeping, and
connection-lifecycle handling that stops/restarts the sync strategy on
disconnect/reconnect.

The rate limiter is grounded directly on this codebase's existing use of
golang.org/x/time/rate for per-client request limiting: the same library,
used here process-wide against the cloud service instead of per
inbound-client. The subscription/connection-lifecycle bookkeeping follows
the sync.RWMutex-guarded-map-plus-background-goroutine shape used
elsewhere in this codebase for per-key runtime state.

Transport is a consumed interface: the concrete MQTT connect/publish/
subscribe implementation lives outside this package, keeping the client
transport-agnostic.
*/
package cloud
