/*
Package queue implements the bounded, blocking, merge-deduplicating sync
request queue (C5): at most one pending request per (thing, shadow) key,
with new arrivals merged into whatever is already queued for that key
according to the collision table (LocalUpdate/CloudUpdate/LocalDelete/
CloudDelete/Full/OverwriteLocal/OverwriteCloud).

No third-party queue library implements keyed merge-on-insert semantics,
so this is hand rolled on a condition-style wait, the same "block until
state changes" idiom this codebase's other background loops use (there
expressed as ticker/select rather than a wait channel, since those loops
don't need merge-on-insert).
*/
package queue
