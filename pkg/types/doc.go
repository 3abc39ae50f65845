/*
Package types defines the core data structures used throughout shadowd.

This package contains the domain model shared by every other package:
shadow documents, the reported/desired state trees they carry, the sync
bookkeeping record the local store keeps per shadow, and the notification
and request shapes the rest of the daemon passes around.

# Core Types

Document model:
  - Document: the full shadow (reported, desired, metadata, version)
  - State: an arbitrary depth-limited JSON object tree
  - Metadata: a State-shaped tree of last-updated timestamps
  - Delta: the unreported subset of desired state

Identity:
  - ThingName, ShadowName, ShadowIdentity

Sync bookkeeping:
  - SyncRecord: last_synced_document, local/cloud version, cloud_deleted
  - DataOwner, SyncDirection: conflict tie-breaking configuration
  - SyncSetEntry: a shadow the sync engine is responsible for

Requests and notifications:
  - UpdateRequest, StatePatch
  - Notification, NotificationKind

All types are plain structs serialized with encoding/json; none of them
carry behavior beyond small predicates (Document.Deleted).
*/
package types
