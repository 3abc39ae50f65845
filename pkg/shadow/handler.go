package shadow

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/shadowd/pkg/document"
	"github.com/cuemby/shadowd/pkg/lock"
	"github.com/cuemby/shadowd/pkg/metrics"
	"github.com/cuemby/shadowd/pkg/notify"
	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/storage"
	"github.com/cuemby/shadowd/pkg/types"
)

// Authorizer decides whether a caller may act on a given shadow. A nil
// Authorizer configured on the Handler allows every request.
type Authorizer interface {
	Authorize(id types.ShadowIdentity, requestID uuid.UUID) error
}

// SyncSetSource reports whether a shadow is a member of the configured
// sync set, so handlers know whether to enqueue follow-up sync work.
// pkg/config.Snapshot-backed implementations answer this from the
// loaded sync_set.
type SyncSetSource interface {
	InSyncSet(id types.ShadowIdentity) bool
}

// Enqueuer accepts sync work a handler raises after a successful local
// write. pkg/queue.Queue satisfies this.
type Enqueuer interface {
	Offer(req queue.Request) error
}

// Handler implements the local shadow request handlers (C4).
type Handler struct {
	Store      storage.Store
	Gate       *lock.Gate
	Notify     *notify.Broker
	Queue      Enqueuer
	SyncSet    SyncSetSource
	Authorizer Authorizer
	MaxBytes   int
}

// Get returns the current document for id. A soft-delete tombstone is
// reported as CodeNotFound, matching the behavior a caller expects from
// a shadow that no longer exists.
func (h *Handler) Get(id types.ShadowIdentity, requestID uuid.UUID) (*types.Document, *Error) {
	if err := h.authorize(id, requestID); err != nil {
		return nil, err
	}
	doc, err := h.Store.GetDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(CodeNotFound, "shadow does not exist", err)
	}
	if err != nil {
		return nil, newError(CodeInternal, "read document", err)
	}
	if doc.Deleted() {
		return nil, newError(CodeNotFound, "shadow does not exist", nil)
	}
	return doc, nil
}

// Update applies req to id's document and returns the resulting
// document. On success it publishes "accepted", "delta" (when desired
// state differs from reported) and "documents" notifications, and
// enqueues a LocalUpdateRequest when id is in the configured sync set.
func (h *Handler) Update(id types.ShadowIdentity, req *types.UpdateRequest) (*types.Document, *Error) {
	if err := h.authorize(id, req.RequestID); err != nil {
		return nil, err
	}
	if req.State == nil {
		return nil, newError(CodeInvalidPatch, "missing state", nil)
	}

	timer := metrics.NewTimer()
	unlock := h.Gate.Lock(id)
	defer unlock()

	current, err := h.Store.GetDocument(id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, newError(CodeInternal, "read document", err)
	}

	// No record, or a tombstone: treat the stored version as 0 for the
	// comparison below, even though a tombstone's real version (used to
	// advance past it) is preserved in current.
	storedVersion := int64(0)
	if err == nil && !current.Deleted() {
		storedVersion = current.Version
	}
	if req.ExpectedVersion != nil && storedVersion != *req.ExpectedVersion {
		return nil, newError(CodeVersionConflict, "version mismatch", nil)
	}

	next, applyErr := document.Apply(current, req.State, time.Now(), h.MaxBytes)
	if applyErr != nil {
		var tooLarge *document.ErrTooLarge
		if errors.As(applyErr, &tooLarge) {
			metrics.RequestsTotal.WithLabelValues("update", "too_large").Inc()
			return nil, newError(CodeTooLarge, "document too large", applyErr)
		}
		if errors.Is(applyErr, document.ErrTooDeep) {
			metrics.RequestsTotal.WithLabelValues("update", "invalid").Inc()
			return nil, newError(CodeInvalidPatch, "state nests too deeply", applyErr)
		}
		metrics.RequestsTotal.WithLabelValues("update", "invalid").Inc()
		return nil, newError(CodeInvalidPatch, "apply patch", applyErr)
	}
	next.Identity = id

	if err := h.Store.PutDocument(next); err != nil {
		metrics.RequestsTotal.WithLabelValues("update", "error").Inc()
		return nil, newError(CodeInternal, "write document", err)
	}

	metrics.DocumentSizeBytes.Observe(float64(documentSize(next)))
	metrics.RequestsTotal.WithLabelValues("update", "accepted").Inc()
	timer.ObserveDurationVec(metrics.RequestDuration, "update")

	now := time.Now()
	h.Notify.Publish(&types.Notification{
		Kind:        types.NotificationAccepted,
		Identity:    id,
		RequestID:   req.RequestID,
		ClientToken: req.ClientToken,
		Previous:    current,
		Current:     next,
		Timestamp:   now,
	})
	if delta := document.ComputeDelta(next); delta != nil {
		h.Notify.Publish(&types.Notification{
			Kind:        types.NotificationDelta,
			Identity:    id,
			RequestID:   req.RequestID,
			ClientToken: req.ClientToken,
			Delta:       delta,
			Timestamp:   now,
		})
	}
	h.Notify.Publish(&types.Notification{
		Kind:        types.NotificationDocuments,
		Identity:    id,
		RequestID:   req.RequestID,
		ClientToken: req.ClientToken,
		Previous:    current,
		Current:     next,
		Timestamp:   now,
	})

	if h.SyncSet != nil && h.SyncSet.InSyncSet(id) && h.Queue != nil {
		_ = h.Queue.Offer(queue.NewLocalUpdate(id, next.Version))
	}

	return next, nil
}

// Delete soft-deletes id's document. On success it publishes a "delete"
// notification and enqueues a LocalDeleteRequest when id is in the
// configured sync set.
func (h *Handler) Delete(id types.ShadowIdentity, requestID uuid.UUID, expectedVersion *int64) *Error {
	if err := h.authorize(id, requestID); err != nil {
		return err
	}

	unlock := h.Gate.Lock(id)
	defer unlock()

	current, err := h.Store.GetDocument(id)
	if errors.Is(err, storage.ErrNotFound) {
		return newError(CodeNotFound, "shadow does not exist", err)
	}
	if err != nil {
		return newError(CodeInternal, "read document", err)
	}
	if current.Deleted() {
		return newError(CodeNotFound, "shadow does not exist", nil)
	}
	if expectedVersion != nil && current.Version != *expectedVersion {
		return newError(CodeVersionConflict, "version mismatch", nil)
	}

	nextVersion := current.Version + 1
	if err := h.Store.DeleteDocument(id, nextVersion); err != nil {
		return newError(CodeInternal, "delete document", err)
	}
	metrics.RequestsTotal.WithLabelValues("delete", "accepted").Inc()

	h.Notify.Publish(&types.Notification{
		Kind:      types.NotificationDelete,
		Identity:  id,
		RequestID: requestID,
		Previous:  current,
		Timestamp: time.Now(),
	})

	if h.SyncSet != nil && h.SyncSet.InSyncSet(id) && h.Queue != nil {
		_ = h.Queue.Offer(queue.NewLocalDelete(id, nextVersion))
	}
	return nil
}

// ListNamedShadowsForThing returns up to limit named shadows for thing,
// starting after offset entries, in lexical order.
func (h *Handler) ListNamedShadowsForThing(thing types.ThingName, offset, limit int) ([]types.ShadowName, *Error) {
	names, err := h.Store.ListNamedShadows(thing, offset, limit)
	if err != nil {
		return nil, newError(CodeInternal, "list named shadows", err)
	}
	return names, nil
}

func (h *Handler) authorize(id types.ShadowIdentity, requestID uuid.UUID) *Error {
	if h.Authorizer == nil {
		return nil
	}
	if err := h.Authorizer.Authorize(id, requestID); err != nil {
		return newError(CodeUnauthorized, "not authorized", err)
	}
	return nil
}

func documentSize(doc *types.Document) int {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return 0
	}
	return len(encoded)
}
