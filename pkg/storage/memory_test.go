package storage

import (
	"testing"

	"github.com/cuemby/shadowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreDocumentRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	id := types.ShadowIdentity{Thing: "thing-1", Shadow: "config"}

	_, err := s.GetDocument(id)
	assert.ErrorIs(t, err, ErrNotFound)

	doc := &types.Document{Identity: id, Version: 1, Reported: types.State{"on": true}}
	require.NoError(t, s.PutDocument(doc))

	got, err := s.GetDocument(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, true, got.Reported["on"])
}

func TestMemoryStoreDeleteIsTombstone(t *testing.T) {
	s := NewMemoryStore()
	id := types.ShadowIdentity{Thing: "thing-1"}
	require.NoError(t, s.PutDocument(&types.Document{Identity: id, Version: 3, Reported: types.State{"a": 1.0}}))

	require.NoError(t, s.DeleteDocument(id, 4))

	got, err := s.GetDocument(id)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, int64(4), got.Version, "version must be preserved/advanced, not reset")
}

func TestMemoryStoreListNamedShadows(t *testing.T) {
	s := NewMemoryStore()
	thing := types.ThingName("thing-1")
	for _, name := range []types.ShadowName{"alpha", "beta", "gamma"} {
		require.NoError(t, s.PutDocument(&types.Document{
			Identity: types.ShadowIdentity{Thing: thing, Shadow: name},
			Version:  1,
		}))
	}
	// unrelated thing must not leak into the listing.
	require.NoError(t, s.PutDocument(&types.Document{
		Identity: types.ShadowIdentity{Thing: "other-thing", Shadow: "alpha"},
		Version:  1,
	}))

	names, err := s.ListNamedShadows(thing, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.ShadowName{"alpha", "beta", "gamma"}, names)

	page, err := s.ListNamedShadows(thing, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []types.ShadowName{"beta"}, page)
}

func TestMemoryStoreSyncRecordDefaultsToZeroValue(t *testing.T) {
	s := NewMemoryStore()
	id := types.ShadowIdentity{Thing: "thing-1"}

	rec, err := s.GetSyncRecord(id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.LocalVersion)

	rec.LocalVersion = 5
	rec.CloudVersion = 4
	require.NoError(t, s.PutSyncRecord(rec))

	got, err := s.GetSyncRecord(id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.LocalVersion)
	assert.Equal(t, int64(4), got.CloudVersion)
}
