/*
Package engine wires shadowd's components together into a running
service: the local store, write gate, notification broker, request
queue, sync executor, sync strategy, cloud client, and operational
control surface. Its Config-struct-then-New-then-Start/Stop shape
follows the top-level coordinator this codebase has always used to
assemble its subsystems into one addressable thing cmd/shadowd can
start and stop, generalized here from a raft-backed cluster coordinator
to a single-process shadow sync engine (multi-writer coordination across
devices is out of scope; see DESIGN.md).
*/
package engine
