package shadow

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shadowd/pkg/lock"
	"github.com/cuemby/shadowd/pkg/notify"
	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/storage"
	"github.com/cuemby/shadowd/pkg/types"
)

type alwaysInSyncSet struct{}

func (alwaysInSyncSet) InSyncSet(types.ShadowIdentity) bool { return true }

type denyAuthorizer struct{}

func (denyAuthorizer) Authorize(types.ShadowIdentity, uuid.UUID) error {
	return assert.AnError
}

func newHandler(store storage.Store, q Enqueuer) *Handler {
	return &Handler{
		Store:    store,
		Gate:     lock.New(),
		Notify:   notify.NewBroker(),
		Queue:    q,
		SyncSet:  alwaysInSyncSet{},
		MaxBytes: 8192,
	}
}

func TestHandlerUpdateCreatesDocumentAndEnqueues(t *testing.T) {
	store := storage.NewMemoryStore()
	q := queue.New()
	h := newHandler(store, q)

	id := types.ShadowIdentity{Thing: "bulb-1"}
	doc, errResp := h.Update(id, &types.UpdateRequest{
		RequestID: uuid.New(),
		State:     &types.StatePatch{Reported: types.State{"on": true}},
	})
	require.Nil(t, errResp)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, 1, q.Len())
}

func TestHandlerUpdateRejectsVersionMismatch(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}})
	require.Nil(t, errResp)

	wrong := int64(99)
	_, errResp = h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": false}}, ExpectedVersion: &wrong})
	require.NotNil(t, errResp)
	assert.Equal(t, CodeVersionConflict, errResp.Code)
	assert.Equal(t, 409, errResp.HTTPStatus())
}

func TestHandlerUpdateRejectsVersionMismatchOnBrandNewShadow(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	wrong := int64(99)
	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}, ExpectedVersion: &wrong})
	require.NotNil(t, errResp)
	assert.Equal(t, CodeVersionConflict, errResp.Code)

	zero := int64(0)
	doc, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}, ExpectedVersion: &zero})
	require.Nil(t, errResp)
	assert.Equal(t, int64(1), doc.Version)
}

func TestHandlerUpdateRecreatesTombstoneWithVersionZero(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}})
	require.Nil(t, errResp)
	require.Nil(t, h.Delete(id, uuid.New(), nil))

	zero := int64(0)
	doc, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}, ExpectedVersion: &zero})
	require.Nil(t, errResp)
	assert.Equal(t, int64(3), doc.Version)
}

func TestHandlerUpdateRejectsStaleVersionAgainstTombstone(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}})
	require.Nil(t, errResp)
	require.Nil(t, h.Delete(id, uuid.New(), nil))

	stale := int64(1)
	_, errResp = h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}, ExpectedVersion: &stale})
	require.NotNil(t, errResp)
	assert.Equal(t, CodeVersionConflict, errResp.Code)
}

func TestHandlerUpdateRejectsTooDeepState(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	deep := types.State{"a": map[string]interface{}{"b": map[string]interface{}{"c": map[string]interface{}{"d": map[string]interface{}{"e": map[string]interface{}{"f": map[string]interface{}{"g": 1}}}}}}}
	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: deep}})
	require.NotNil(t, errResp)
	assert.Equal(t, CodeInvalidPatch, errResp.Code)
	assert.Equal(t, 400, errResp.HTTPStatus())
}

func TestHandlerGetNotFoundForUnknownAndDeletedShadow(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Get(id, uuid.New())
	require.NotNil(t, errResp)
	assert.Equal(t, CodeNotFound, errResp.Code)
	assert.Equal(t, 404, errResp.HTTPStatus())

	_, errResp = h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}})
	require.Nil(t, errResp)
	require.Nil(t, h.Delete(id, uuid.New(), nil))

	_, errResp = h.Get(id, uuid.New())
	require.NotNil(t, errResp)
	assert.Equal(t, CodeNotFound, errResp.Code)
}

func TestHandlerDeleteEnqueuesLocalDelete(t *testing.T) {
	store := storage.NewMemoryStore()
	q := queue.New()
	h := newHandler(store, q)
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"on": true}}})
	require.Nil(t, errResp)
	q.Clear()

	require.Nil(t, h.Delete(id, uuid.New(), nil))
	assert.Equal(t, 1, q.Len())
	req, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, queue.KindLocalDelete, req.Kind())
}

func TestHandlerAuthorizerDenies(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())
	h.Authorizer = denyAuthorizer{}
	id := types.ShadowIdentity{Thing: "bulb-1"}

	_, errResp := h.Get(id, uuid.New())
	require.NotNil(t, errResp)
	assert.Equal(t, CodeUnauthorized, errResp.Code)
	assert.Equal(t, 401, errResp.HTTPStatus())
}

func TestListNamedShadowsForThing(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newHandler(store, queue.New())

	for _, name := range []string{"temperature", "humidity"} {
		id := types.ShadowIdentity{Thing: "sensor-1", Shadow: types.ShadowName(name)}
		_, errResp := h.Update(id, &types.UpdateRequest{RequestID: uuid.New(), State: &types.StatePatch{Reported: types.State{"v": 1}}})
		require.Nil(t, errResp)
	}

	names, errResp := h.ListNamedShadowsForThing("sensor-1", 0, 10)
	require.Nil(t, errResp)
	assert.ElementsMatch(t, []types.ShadowName{"temperature", "humidity"}, names)
}
