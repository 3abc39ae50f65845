/*
Package storage implements the local shadow store (C2): per-(thing,shadow)
document persistence with monotonic versioning and soft-delete tombstones,
plus the parallel sync record each shadow needs to track what has already
been exchanged with the cloud.

BoltStore uses a go.etcd.io/bbolt bucket-per-entity layout, with the
same db.Update/db.View transaction shape and JSON-marshal-per-record
encoding as this codebase's other persistence needs, here split into two
buckets (documents and sync records) keyed by shadow identity instead
of a generated UUID. MemoryStore implements the same Store interface over
a plain map, for tests and for embedding shadowd without a data
directory.
*/
package storage
