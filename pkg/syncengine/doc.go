/*
Package syncengine implements the sync executor (C6): it takes a single
queue.Request, performs whatever local store reads/writes and cloud calls
that kind of request requires under the per-shadow write gate, and
classifies the result as success, retry, skip, or conflict.

The dispatch shape, a single Execute entrypoint type-switching over a
closed set of request kinds and recording an outcome per attempt, follows
the ticker-and-dispatch loop this codebase's reconciliation workers have
always used, adapted here to operate on one discrete request instead of
a fixed periodic body. Conflicts follow the sync direction configured
for that shadow: a version conflict reported by the cloud escalates to a
full resync under between, or to an explicit overwrite of one side
otherwise; a full resync that finds both sides' versions moved since the
last sync merges them in place under between and escalates to an
overwrite otherwise.
*/
package syncengine
