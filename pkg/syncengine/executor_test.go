package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shadowd/pkg/cloud"
	"github.com/cuemby/shadowd/pkg/events"
	"github.com/cuemby/shadowd/pkg/lock"
	"github.com/cuemby/shadowd/pkg/notify"
	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/storage"
	"github.com/cuemby/shadowd/pkg/types"
)

type fakeCloud struct {
	mu        sync.Mutex
	docs      map[types.ShadowIdentity]*types.Document
	updates   int
	getErr    error
	updateErr error
	deleteErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{docs: make(map[types.ShadowIdentity]*types.Document)}
}

func (f *fakeCloud) Get(_ context.Context, id types.ShadowIdentity) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if doc, ok := f.docs[id]; ok {
		cp := *doc
		return &cp, nil
	}
	return &types.Document{Identity: id}, nil
}

func (f *fakeCloud) Update(_ context.Context, id types.ShadowIdentity, patch *types.StatePatch) (*types.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates++
	doc := f.docs[id]
	version := int64(1)
	if doc != nil {
		version = doc.Version + 1
	}
	next := &types.Document{Identity: id, Reported: patch.Reported, Desired: patch.Desired, Version: version, Timestamp: time.Now()}
	f.docs[id] = next
	cp := *next
	return &cp, nil
}

func (f *fakeCloud) Delete(_ context.Context, id types.ShadowIdentity, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.docs, id)
	return nil
}

type fixedDirection struct {
	direction types.SyncDirection
	owner     types.DataOwner
}

func (d fixedDirection) Direction(types.ShadowIdentity) (types.SyncDirection, types.DataOwner) {
	return d.direction, d.owner
}

func newExecutor(t *testing.T, store storage.Store, cloud CloudClient, q Enqueuer, direction DirectionSource) *Executor {
	t.Helper()
	return &Executor{
		Store:     store,
		Cloud:     cloud,
		Gate:      lock.New(),
		Notify:    notify.NewBroker(),
		Events:    events.NewBroker(),
		Queue:     q,
		Direction: direction,
		MaxBytes:  8192,
	}
}

func TestExecuteLocalUpdatePushesToCloud(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	doc := &types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}
	require.NoError(t, store.PutDocument(doc))

	cloud := newFakeCloud()
	exec := newExecutor(t, store, cloud, queue.New(), fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalUpdate(id, 1))
	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, 1, cloud.updates)

	rec, err := store.GetSyncRecord(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.LocalVersion)
}

func TestExecuteLocalUpdateSkipsWhenSuperseded(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Version: 2}))

	cloud := newFakeCloud()
	exec := newExecutor(t, store, cloud, queue.New(), fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalUpdate(id, 1))
	assert.Equal(t, OutcomeSkip, result.Outcome)
	assert.Equal(t, 0, cloud.updates)
}

func TestExecuteCloudUpdateMergesLocally(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	cloud := newFakeCloud()
	exec := newExecutor(t, store, cloud, queue.New(), fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	pushed := &types.Document{Identity: id, Reported: types.State{"on": true}, Version: 5}
	result := exec.ExecuteResult(context.Background(), queue.NewCloudUpdate(id, pushed))
	require.Equal(t, OutcomeSuccess, result.Outcome)

	stored, err := store.GetDocument(id)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Reported["on"])
}

func TestExecuteCloudDeleteSoftDeletesLocally(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}))

	cloud := newFakeCloud()
	exec := newExecutor(t, store, cloud, queue.New(), fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewCloudDelete(id))
	require.Equal(t, OutcomeSuccess, result.Outcome)

	stored, err := store.GetDocument(id)
	require.NoError(t, err)
	assert.True(t, stored.Deleted())
}

func TestExecuteFullSyncEscalatesConflictWhenOneWayDirection(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 3}))
	require.NoError(t, store.PutSyncRecord(&types.SyncRecord{Identity: id, LocalVersion: 1, CloudVersion: 1}))

	cloud := newFakeCloud()
	cloud.docs[id] = &types.Document{Identity: id, Reported: types.State{"on": false}, Version: 4}

	q := queue.New()
	exec := newExecutor(t, store, cloud, q, fixedDirection{types.SyncDirectionDeviceToCloud, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewFullSync(id))
	require.Equal(t, OutcomeConflict, result.Outcome)

	require.Equal(t, 1, q.Len())
	next, _ := q.Poll()
	assert.Equal(t, queue.KindOverwriteCloud, next.Kind())
}

func TestExecuteLocalUpdateEscalatesConflictOnCloud409(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}))

	c := newFakeCloud()
	c.updateErr = fmt.Errorf("%w: stale version", cloud.ErrConflict)

	q := queue.New()
	exec := newExecutor(t, store, c, q, fixedDirection{types.SyncDirectionDeviceToCloud, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalUpdate(id, 1))
	require.Equal(t, OutcomeConflict, result.Outcome)

	require.Equal(t, 1, q.Len())
	next, _ := q.Poll()
	assert.Equal(t, queue.KindOverwriteCloud, next.Kind())
}

func TestExecuteLocalUpdateRetriesOnTransportError(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}))

	c := newFakeCloud()
	c.updateErr = errors.New("transport timeout")

	q := queue.New()
	exec := newExecutor(t, store, c, q, fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalUpdate(id, 1))
	assert.Equal(t, OutcomeRetry, result.Outcome)
	assert.Equal(t, 0, q.Len())
}

func TestExecuteLocalUpdateSkipsOnCloudRejection(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}))

	c := newFakeCloud()
	c.updateErr = fmt.Errorf("%w: malformed patch", cloud.ErrRejected)

	q := queue.New()
	exec := newExecutor(t, store, c, q, fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalUpdate(id, 1))
	assert.Equal(t, OutcomeSkip, result.Outcome)
	assert.Equal(t, 0, q.Len())
}

func TestExecuteLocalDeleteEscalatesConflictOnCloud409(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}

	c := newFakeCloud()
	c.deleteErr = fmt.Errorf("%w: already deleted", cloud.ErrConflict)

	q := queue.New()
	exec := newExecutor(t, store, c, q, fixedDirection{types.SyncDirectionCloudToDevice, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewLocalDelete(id, 1))
	require.Equal(t, OutcomeConflict, result.Outcome)

	require.Equal(t, 1, q.Len())
	next, _ := q.Poll()
	assert.Equal(t, queue.KindOverwriteLocal, next.Kind())
}

func TestExecuteFullSyncMergesWhenDirectionBetween(t *testing.T) {
	store := storage.NewMemoryStore()
	id := types.ShadowIdentity{Thing: "bulb-1"}
	require.NoError(t, store.PutDocument(&types.Document{Identity: id, Reported: types.State{"on": true}, Version: 1}))

	cloud := newFakeCloud()
	cloud.docs[id] = &types.Document{Identity: id, Reported: types.State{"brightness": float64(5)}, Version: 1}

	exec := newExecutor(t, store, cloud, queue.New(), fixedDirection{types.SyncDirectionBetween, types.DataOwnerCloud})

	result := exec.ExecuteResult(context.Background(), queue.NewFullSync(id))
	require.Equal(t, OutcomeSuccess, result.Outcome)

	stored, err := store.GetDocument(id)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Reported["on"])
	assert.Equal(t, float64(5), stored.Reported["brightness"])
}
