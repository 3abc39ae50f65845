package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/shadowd/pkg/cloud"
	"github.com/cuemby/shadowd/pkg/document"
	"github.com/cuemby/shadowd/pkg/events"
	"github.com/cuemby/shadowd/pkg/lock"
	"github.com/cuemby/shadowd/pkg/metrics"
	"github.com/cuemby/shadowd/pkg/notify"
	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/storage"
	"github.com/cuemby/shadowd/pkg/types"
)

// CloudClient is the subset of pkg/cloud.Client the executor needs. It is
// declared here, rather than importing the concrete type, so tests can
// supply a fake without constructing a real Transport.
type CloudClient interface {
	Get(ctx context.Context, id types.ShadowIdentity) (*types.Document, error)
	Update(ctx context.Context, id types.ShadowIdentity, patch *types.StatePatch) (*types.Document, error)
	Delete(ctx context.Context, id types.ShadowIdentity, expectedVersion int64) error
}

// Enqueuer accepts follow-up requests the executor raises itself, such as
// the full resync or overwrite an escalated conflict produces.
// pkg/queue.Queue satisfies this.
type Enqueuer interface {
	Offer(req queue.Request) error
}

// DirectionSource resolves the configured sync direction and tie-break
// owner for a shadow. pkg/config.Snapshot-backed implementations look
// this up from the configured sync set; a shadow not found there falls
// back to SyncDirectionBetween / DataOwnerCloud.
type DirectionSource interface {
	Direction(id types.ShadowIdentity) (types.SyncDirection, types.DataOwner)
}

// Executor performs the local/cloud work a single sync request requires.
type Executor struct {
	Store     storage.Store
	Cloud     CloudClient
	Gate      *lock.Gate
	Notify    *notify.Broker
	Events    *events.Broker
	Queue     Enqueuer
	Direction DirectionSource
	MaxBytes  int
}

// ExecuteResult dispatches req to the handler for its kind and returns
// the resulting outcome. It never panics on an unrecognized kind; an
// unknown concrete type is treated as a skip.
func (e *Executor) ExecuteResult(ctx context.Context, req queue.Request) Result {
	timer := metrics.NewTimer()
	kind := string(req.Kind())
	result := e.dispatch(ctx, req)
	timer.ObserveDurationVec(metrics.SyncDuration, kind)
	metrics.SyncOutcomesTotal.WithLabelValues(kind, string(result.Outcome)).Inc()
	return result
}

// Execute adapts ExecuteResult to pkg/strategy's Executor interface,
// which only needs to know whether a request should be retried.
func (e *Executor) Execute(ctx context.Context, req queue.Request) error {
	result := e.ExecuteResult(ctx, req)
	if result.Outcome == OutcomeRetry {
		return result.Err
	}
	return nil
}

func (e *Executor) dispatch(ctx context.Context, req queue.Request) Result {
	switch r := req.(type) {
	case queue.LocalUpdateRequest:
		return e.executeLocalUpdate(ctx, r)
	case queue.CloudUpdateRequest:
		return e.executeCloudUpdate(ctx, r)
	case queue.LocalDeleteRequest:
		return e.executeLocalDelete(ctx, r)
	case queue.CloudDeleteRequest:
		return e.executeCloudDelete(ctx, r)
	case queue.FullSyncRequest:
		return e.executeFullSync(ctx, r)
	case queue.OverwriteLocalRequest:
		return e.executeOverwriteLocal(ctx, r)
	case queue.OverwriteCloudRequest:
		return e.executeOverwriteCloud(ctx, r)
	default:
		return Result{Outcome: OutcomeSkip, Err: fmt.Errorf("syncengine: unrecognized request kind %T", req)}
	}
}

func (e *Executor) executeLocalUpdate(ctx context.Context, r queue.LocalUpdateRequest) Result {
	unlock := e.Gate.Lock(r.Key())
	local, err := e.Store.GetDocument(r.Key())
	unlock()
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeSkip}
	}
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	if local.Version != r.Version {
		// a newer local write has already superseded this one; the
		// newer write queued its own LocalUpdateRequest.
		return Result{Outcome: OutcomeSkip}
	}

	accepted, err := e.Cloud.Update(ctx, r.Key(), &types.StatePatch{Reported: local.Reported, Desired: local.Desired})
	if err != nil {
		return e.classifyCloudErr(r.Key(), err)
	}

	now := time.Now()
	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.LocalVersion = local.Version
	rec.CloudVersion = accepted.Version
	rec.LastSyncedDocument = local.Reported
	rec.LastSyncTime = now
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeCloudUpdate(ctx context.Context, r queue.CloudUpdateRequest) Result {
	if r.Document == nil {
		return Result{Outcome: OutcomeSkip}
	}
	unlock := e.Gate.Lock(r.Key())
	defer unlock()

	local, err := e.Store.GetDocument(r.Key())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	patch := &types.StatePatch{Reported: r.Document.Reported, Desired: r.Document.Desired}
	next, err := document.Apply(local, patch, time.Now(), e.MaxBytes)
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	next.Identity = r.Key()
	if err := e.Store.PutDocument(next); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.CloudVersion = r.Document.Version
	rec.LocalVersion = next.Version
	rec.LastSyncedDocument = next.Reported
	rec.LastSyncTime = time.Now()
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	e.Notify.Publish(&types.Notification{Kind: types.NotificationDocuments, Identity: r.Key(), Current: next, Timestamp: time.Now()})
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeLocalDelete(ctx context.Context, r queue.LocalDeleteRequest) Result {
	if err := e.Cloud.Delete(ctx, r.Key(), r.Version); err != nil {
		return e.classifyCloudErr(r.Key(), err)
	}
	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.LocalVersion = r.Version
	rec.CloudVersion++
	rec.CloudDeleted = true
	rec.LastSyncTime = time.Now()
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeCloudDelete(ctx context.Context, r queue.CloudDeleteRequest) Result {
	unlock := e.Gate.Lock(r.Key())
	defer unlock()

	local, err := e.Store.GetDocument(r.Key())
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeSkip}
	}
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	if err := e.Store.DeleteDocument(r.Key(), local.Version+1); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.CloudDeleted = true
	rec.LastSyncTime = time.Now()
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	e.Notify.Publish(&types.Notification{Kind: types.NotificationDelete, Identity: r.Key(), Timestamp: time.Now()})
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeFullSync(ctx context.Context, r queue.FullSyncRequest) Result {
	unlock := e.Gate.Lock(r.Key())
	defer unlock()

	local, err := e.Store.GetDocument(r.Key())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	if local == nil {
		local = &types.Document{Identity: r.Key()}
	}
	cloudDoc, err := e.Cloud.Get(ctx, r.Key())
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	if cloudDoc == nil {
		cloudDoc = &types.Document{Identity: r.Key()}
	}

	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}

	direction, owner := types.SyncDirectionBetween, types.DataOwnerCloud
	if e.Direction != nil {
		direction, owner = e.Direction.Direction(r.Key())
	}

	bothChanged := local.Version != rec.LocalVersion && cloudDoc.Version != rec.CloudVersion
	if bothChanged && direction != types.SyncDirectionBetween {
		if err := e.escalateConflict(r.Key(), direction); err != nil {
			return Result{Outcome: OutcomeRetry, Err: err}
		}
		return Result{Outcome: OutcomeConflict}
	}

	base := &types.Document{Reported: rec.LastSyncedDocument}
	merged := document.MergeThreeWay(base, local, cloudDoc, owner)
	merged.Identity = r.Key()

	if err := e.Store.PutDocument(merged); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	accepted, err := e.Cloud.Update(ctx, r.Key(), &types.StatePatch{Reported: merged.Reported, Desired: merged.Desired})
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	now := time.Now()
	rec.LocalVersion = merged.Version
	rec.CloudVersion = accepted.Version
	rec.LastSyncedDocument = merged.Reported
	rec.LastSyncTime = now
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	e.Notify.Publish(&types.Notification{Kind: types.NotificationDocuments, Identity: r.Key(), Current: merged, Timestamp: now})
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeOverwriteLocal(ctx context.Context, r queue.OverwriteLocalRequest) Result {
	unlock := e.Gate.Lock(r.Key())
	defer unlock()

	cloudDoc, err := e.Cloud.Get(ctx, r.Key())
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	local, err := e.Store.GetDocument(r.Key())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	next := *cloudDoc
	next.Identity = r.Key()
	if local != nil && local.Version >= next.Version {
		next.Version = local.Version + 1
	}
	next.Timestamp = time.Now()
	if err := e.Store.PutDocument(&next); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.LocalVersion = next.Version
	rec.CloudVersion = cloudDoc.Version
	rec.LastSyncedDocument = next.Reported
	rec.LastSyncTime = time.Now()
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	e.Notify.Publish(&types.Notification{Kind: types.NotificationDocuments, Identity: r.Key(), Current: &next, Timestamp: time.Now()})
	return Result{Outcome: OutcomeSuccess}
}

func (e *Executor) executeOverwriteCloud(ctx context.Context, r queue.OverwriteCloudRequest) Result {
	unlock := e.Gate.Lock(r.Key())
	local, err := e.Store.GetDocument(r.Key())
	unlock()
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	accepted, err := e.Cloud.Update(ctx, r.Key(), &types.StatePatch{Reported: local.Reported, Desired: local.Desired})
	if err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}

	rec, _ := e.Store.GetSyncRecord(r.Key())
	if rec == nil {
		rec = &types.SyncRecord{Identity: r.Key()}
	}
	rec.LocalVersion = local.Version
	rec.CloudVersion = accepted.Version
	rec.LastSyncedDocument = local.Reported
	rec.LastSyncTime = time.Now()
	if err := e.Store.PutSyncRecord(rec); err != nil {
		return Result{Outcome: OutcomeRetry, Err: err}
	}
	return Result{Outcome: OutcomeSuccess}
}

// classifyCloudErr maps a failed cloud call's error into the right
// outcome: a version conflict escalates to a recovery request chosen by
// the configured direction, a rejection is skipped outright, and
// anything else (transport errors, 5xx, throttling) is retried.
func (e *Executor) classifyCloudErr(id types.ShadowIdentity, err error) Result {
	if errors.Is(err, cloud.ErrConflict) {
		direction := types.SyncDirectionBetween
		if e.Direction != nil {
			direction, _ = e.Direction.Direction(id)
		}
		if qerr := e.escalateConflict(id, direction); qerr != nil {
			return Result{Outcome: OutcomeRetry, Err: qerr}
		}
		return Result{Outcome: OutcomeConflict, Err: err}
	}
	if errors.Is(err, cloud.ErrRejected) {
		return Result{Outcome: OutcomeSkip, Err: err}
	}
	return Result{Outcome: OutcomeRetry, Err: err}
}

// escalateConflict enqueues the recovery request direction prescribes
// for a genuine conflict: a full three-way merge under "between", or an
// outright overwrite of whichever side direction designates as stale.
func (e *Executor) escalateConflict(id types.ShadowIdentity, direction types.SyncDirection) error {
	resolution := string(queue.KindFull)
	var follow queue.Request = queue.NewFullSync(id)
	switch direction {
	case types.SyncDirectionDeviceToCloud:
		resolution = string(queue.KindOverwriteCloud)
		follow = queue.NewOverwriteCloud(id)
	case types.SyncDirectionCloudToDevice:
		resolution = string(queue.KindOverwriteLocal)
		follow = queue.NewOverwriteLocal(id)
	}
	metrics.ConflictsTotal.WithLabelValues(resolution).Inc()
	e.raiseConflict(id)
	if e.Queue == nil {
		return nil
	}
	return e.Queue.Offer(follow)
}

func (e *Executor) raiseConflict(id types.ShadowIdentity) {
	if e.Events == nil {
		return
	}
	e.Events.Publish(&events.Event{
		Type:    events.TypeConflictDetected,
		Message: fmt.Sprintf("conflict detected for %s", id.String()),
	})
}
