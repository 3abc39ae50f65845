// Package types holds the domain types shared across shadowd's packages:
// the shadow document itself, its metadata, identity, and the records the
// local store keeps to track synchronization with the cloud shadow service.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ThingName identifies the device (or sub-resource of a device) a shadow
// belongs to.
type ThingName string

// ShadowName identifies a named shadow within a thing. The empty string
// denotes the classic (unnamed) shadow.
type ShadowName string

// ShadowIdentity addresses a single shadow document.
type ShadowIdentity struct {
	Thing  ThingName
	Shadow ShadowName
}

func (id ShadowIdentity) String() string {
	if id.Shadow == "" {
		return string(id.Thing)
	}
	return string(id.Thing) + "/" + string(id.Shadow)
}

// State is an arbitrary, depth-limited JSON object tree: reported or
// desired device state.
type State map[string]interface{}

// Metadata mirrors the shape of a State tree but carries, at every leaf
// that has one, a one-field object of the form {"timestamp": <epoch
// seconds>} instead of a value.
type Metadata map[string]interface{}

// DocumentMetadata carries the reported and desired metadata trees.
type DocumentMetadata struct {
	Reported Metadata `json:"reported,omitempty"`
	Desired  Metadata `json:"desired,omitempty"`
}

// Document is the full shadow document: reported state, desired state,
// per-leaf metadata, and the monotonic version the local write gate
// advances on every accepted mutation.
type Document struct {
	Identity  ShadowIdentity   `json:"-"`
	Reported  State            `json:"reported,omitempty"`
	Desired   State            `json:"desired,omitempty"`
	Metadata  DocumentMetadata `json:"metadata,omitempty"`
	Version   int64            `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
}

// Deleted reports whether this document represents a soft-delete
// tombstone: a document with a version but no reported/desired content.
func (d *Document) Deleted() bool {
	return len(d.Reported) == 0 && len(d.Desired) == 0
}

// SyncRecord is the parallel bookkeeping record the local store keeps per
// shadow to track what has been exchanged with the cloud.
type SyncRecord struct {
	Identity           ShadowIdentity `json:"-"`
	LastSyncedDocument State          `json:"last_synced_document,omitempty"`
	LocalVersion       int64          `json:"local_version"`
	CloudVersion       int64          `json:"cloud_version"`
	CloudDeleted       bool           `json:"cloud_deleted"`
	CloudUpdateTime    time.Time      `json:"cloud_update_time"`
	LastSyncTime       time.Time      `json:"last_sync_time"`
}

// DataOwner breaks ties when the local and cloud sides of a shadow have
// both changed since the last successful sync and a single side must be
// picked to win.
type DataOwner string

const (
	DataOwnerLocal DataOwner = "local"
	DataOwnerCloud DataOwner = "cloud"
)

// SyncDirection controls which way conflicts are allowed to resolve for a
// configured shadow.
type SyncDirection string

const (
	SyncDirectionBetween       SyncDirection = "between"
	SyncDirectionDeviceToCloud SyncDirection = "device_to_cloud"
	SyncDirectionCloudToDevice SyncDirection = "cloud_to_device"
)

// UpdateRequest is the input to a shadow update operation: a partial
// document patch plus an optional expected version for optimistic
// concurrency control.
type UpdateRequest struct {
	RequestID       uuid.UUID  `json:"-"`
	ClientToken     string     `json:"clientToken,omitempty"`
	State           *StatePatch `json:"state,omitempty"`
	ExpectedVersion *int64     `json:"version,omitempty"`
}

// StatePatch is the raw reported/desired patch supplied by a caller,
// before null-as-delete merge semantics are applied.
type StatePatch struct {
	Reported State `json:"reported,omitempty"`
	Desired  State `json:"desired,omitempty"`
}

// Delta is the subset of desired state that has not yet been reported,
// after numeric semantic-equality comparison against reported state.
type Delta struct {
	State     State     `json:"state,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationKind distinguishes the four notification channels a
// request handler can emit on.
type NotificationKind string

const (
	NotificationAccepted  NotificationKind = "accepted"
	NotificationDelta     NotificationKind = "delta"
	NotificationDocuments NotificationKind = "documents"
	NotificationDelete    NotificationKind = "delete"
)

// Notification is published on pkg/notify's broker after a request
// handler successfully applies a change.
type Notification struct {
	Kind        NotificationKind `json:"-"`
	Identity    ShadowIdentity   `json:"-"`
	RequestID   uuid.UUID        `json:"-"`
	ClientToken string           `json:"clientToken,omitempty"`
	Previous    *Document        `json:"previous,omitempty"`
	Current     *Document        `json:"current,omitempty"`
	Delta       *Delta           `json:"delta,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// SyncSetEntry names a single shadow that the sync engine is responsible
// for keeping in sync with the cloud, plus the direction conflicts on it
// may resolve in.
type SyncSetEntry struct {
	Identity  ShadowIdentity
	Direction SyncDirection
	Owner     DataOwner
}
