/*
Package lock implements the per-shadow write gate: a striped keyed-mutex
registry that enforces linearizable local version progression for a given
(thing, shadow) pair without ever suspending a caller that already holds a
stripe's lock.

Uses the sync.RWMutex-guarded map style used elsewhere in this codebase
for background dispatch bookkeeping, generalized from a single global map
lock to per-key striping so unrelated shadows never contend.
*/
package lock
