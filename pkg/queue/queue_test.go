package queue

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/shadowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(thing string) types.ShadowIdentity {
	return types.ShadowIdentity{Thing: types.ThingName(thing)}
}

func TestQueueMergesSameKey(t *testing.T) {
	q := New()
	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 1)))
	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 2)))

	assert.Equal(t, 1, q.Len(), "two updates to the same shadow must collapse to one entry")

	req, ok := q.Poll()
	require.True(t, ok)
	lu, ok := req.(LocalUpdateRequest)
	require.True(t, ok)
	assert.Equal(t, int64(2), lu.Version, "merge should keep the newer version")
}

func TestQueueFIFOAcrossDistinctKeys(t *testing.T) {
	q := New()
	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 1)))
	require.NoError(t, q.Offer(NewLocalUpdate(id("b"), 1)))

	first, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, id("a"), first.Key())

	second, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, id("b"), second.Key())
}

func TestQueueTakeBlocksUntilPut(t *testing.T) {
	q := New()
	done := make(chan Request, 1)
	go func() {
		req, err := q.Take(context.Background())
		if err == nil {
			done <- req
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Offer(NewCloudDelete(id("a"))))

	select {
	case req := <-done:
		assert.Equal(t, id("a"), req.Key())
	case <-time.After(time.Second):
		t.Fatal("Take did not unblock after Offer")
	}
}

func TestQueueTakeRespectsContextCancellation(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Take(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueOfferFullDistinctKeyRejected(t *testing.T) {
	q := NewWithCapacity(1)
	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 1)))
	err := q.Offer(NewLocalUpdate(id("b"), 1))
	assert.ErrorIs(t, err, ErrFull)

	// same key still merges even though the queue is "full".
	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 2)))
}

func TestQueueOfferAndTakeRetriesAtHead(t *testing.T) {
	q := New()
	req, ok := q.OfferAndTake(NewFullSync(id("a")))
	assert.True(t, ok)
	assert.Equal(t, id("a"), req.Key())
	assert.Equal(t, 0, q.Len())
}

func TestMergeSimultaneousDeletesEscalateToFull(t *testing.T) {
	merged := Merge(NewLocalDelete(id("a"), 3), NewCloudDelete(id("a")), types.SyncDirectionBetween)
	assert.Equal(t, KindFull, merged.Kind())
}

func TestMergeDisjointSidesEscalateToFullUnderBetween(t *testing.T) {
	merged := Merge(NewLocalUpdate(id("a"), 1), NewCloudUpdate(id("a"), nil), types.SyncDirectionBetween)
	assert.Equal(t, KindFull, merged.Kind())
}

func TestMergeDisjointSidesResolveDirectionallyDeviceToCloud(t *testing.T) {
	merged := Merge(NewLocalUpdate(id("a"), 1), NewCloudUpdate(id("a"), nil), types.SyncDirectionDeviceToCloud)
	assert.Equal(t, KindOverwriteCloud, merged.Kind())

	merged = Merge(NewCloudUpdate(id("a"), nil), NewLocalUpdate(id("a"), 1), types.SyncDirectionDeviceToCloud)
	assert.Equal(t, KindOverwriteCloud, merged.Kind())
}

func TestMergeDisjointSidesResolveDirectionallyCloudToDevice(t *testing.T) {
	merged := Merge(NewLocalUpdate(id("a"), 1), NewCloudUpdate(id("a"), nil), types.SyncDirectionCloudToDevice)
	assert.Equal(t, KindOverwriteLocal, merged.Kind())

	merged = Merge(NewCloudUpdate(id("a"), nil), NewLocalUpdate(id("a"), 1), types.SyncDirectionCloudToDevice)
	assert.Equal(t, KindOverwriteLocal, merged.Kind())
}

func TestMergeFullAbsorbsAnything(t *testing.T) {
	merged := Merge(NewFullSync(id("a")), NewLocalUpdate(id("a"), 9), types.SyncDirectionBetween)
	assert.Equal(t, KindFull, merged.Kind())
}

func TestQueueInsertConsultsDirectionSourceOnCollision(t *testing.T) {
	q := New()
	q.SetDirectionSource(fixedQueueDirection{direction: types.SyncDirectionDeviceToCloud})

	require.NoError(t, q.Offer(NewLocalUpdate(id("a"), 1)))
	require.NoError(t, q.Offer(NewCloudUpdate(id("a"), nil)))

	req, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, KindOverwriteCloud, req.Kind())
}

type fixedQueueDirection struct {
	direction types.SyncDirection
}

func (f fixedQueueDirection) Direction(types.ShadowIdentity) (types.SyncDirection, types.DataOwner) {
	return f.direction, types.DataOwnerCloud
}
