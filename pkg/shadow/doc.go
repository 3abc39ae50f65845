/*
Package shadow implements the request handlers for the local shadow API
(C4): Get, Update, Delete, and ListNamedShadowsForThing. Update and
Delete acquire the per-shadow write gate, read and write through
pkg/storage (Update applying null-as-delete merge semantics via
pkg/document), publish notifications on pkg/notify, and enqueue
follow-up sync work on pkg/queue when the shadow is a member of the
configured sync set. Get and ListNamedShadowsForThing only read
pkg/storage and do not take the gate.

Errors are reported as a typed Error carrying both a stable code and the
HTTP status an outer transport should map it to, following this
codebase's pattern of keeping transport-agnostic handler logic separate
from the HTTP layer that eventually wraps it.
*/
package shadow
