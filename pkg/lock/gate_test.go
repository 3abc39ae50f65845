package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cuemby/shadowd/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestGateSerializesSameKey(t *testing.T) {
	g := New()
	id := types.ShadowIdentity{Thing: "thing-1"}

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := g.Lock(id)
			defer unlock()
			v := atomic.LoadInt64(&counter)
			atomic.StoreInt64(&counter, v+1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), counter)
}

func TestGateTryLockFailsWhileHeld(t *testing.T) {
	g := NewWithStripes(1)
	id := types.ShadowIdentity{Thing: "thing-1"}
	unlock := g.Lock(id)
	defer unlock()

	_, ok := g.TryLock(types.ShadowIdentity{Thing: "thing-2"})
	assert.False(t, ok, "single-stripe gate should report the stripe held regardless of key")
}

func TestGateAllowsDistinctStripesConcurrently(t *testing.T) {
	g := NewWithStripes(64)
	id1 := types.ShadowIdentity{Thing: "alpha"}
	id2 := types.ShadowIdentity{Thing: "zzz-does-not-collide"}

	unlock1 := g.Lock(id1)
	defer unlock1()

	unlock2, ok := g.TryLock(id2)
	if ok {
		unlock2()
	}
	// Not asserting ok strictly (hash collisions are possible with 64
	// stripes), just exercising the non-blocking path.
}
