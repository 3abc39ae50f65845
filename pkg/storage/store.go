package storage

import (
	"github.com/cuemby/shadowd/pkg/types"
)

// ErrNotFound is returned by the Get* methods when no record exists for
// the requested identity.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "storage: not found" }

// Store defines the interface for local shadow persistence.
type Store interface {
	// GetDocument returns the current document for id, including
	// soft-delete tombstones (a tombstone has Deleted() == true but a
	// preserved Version). Returns ErrNotFound if the shadow has never
	// existed.
	GetDocument(id types.ShadowIdentity) (*types.Document, error)

	// PutDocument persists doc as the current state for its identity.
	PutDocument(doc *types.Document) error

	// DeleteDocument soft-deletes the shadow: the document is replaced
	// by a tombstone carrying version (callers pass the next version)
	// rather than being physically removed, so a stale reader can still
	// detect it missed a deletion.
	DeleteDocument(id types.ShadowIdentity, version int64) error

	// ListNamedShadows returns up to limit shadow names for thing,
	// starting after offset entries, in lexical order.
	ListNamedShadows(thing types.ThingName, offset, limit int) ([]types.ShadowName, error)

	// GetSyncRecord returns the sync bookkeeping record for id, or a
	// zero-value record (no error) if none has been written yet.
	GetSyncRecord(id types.ShadowIdentity) (*types.SyncRecord, error)

	// PutSyncRecord persists rec as the current sync bookkeeping for its
	// identity.
	PutSyncRecord(rec *types.SyncRecord) error

	// Close releases any resources held by the store.
	Close() error
}
