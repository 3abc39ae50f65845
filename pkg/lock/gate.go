package lock

import (
	"hash/fnv"
	"sync"

	"github.com/cuemby/shadowd/pkg/types"
)

// defaultStripes is the number of independent mutex stripes the gate
// spreads keys across. A shadow's stripe is fixed by hashing its
// identity, so the same shadow always serializes through the same
// stripe while unrelated shadows rarely collide.
const defaultStripes = 256

// Gate is a keyed mutex registry: Lock(identity) blocks only callers
// contending for the same stripe, never the whole gate.
type Gate struct {
	stripes []sync.Mutex
}

// New creates a Gate with the default stripe count.
func New() *Gate {
	return NewWithStripes(defaultStripes)
}

// NewWithStripes creates a Gate with an explicit stripe count, mainly for
// tests that want to force collisions.
func NewWithStripes(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{stripes: make([]sync.Mutex, n)}
}

func (g *Gate) stripeFor(id types.ShadowIdentity) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id.String()))
	return &g.stripes[h.Sum32()%uint32(len(g.stripes))]
}

// Lock blocks until the stripe for id is free, then returns an unlock
// function. Callers never hold the lock across a suspension point; the
// expected usage is `defer gate.Lock(id)()` around the critical section
// that reads-then-writes a shadow's version.
func (g *Gate) Lock(id types.ShadowIdentity) func() {
	m := g.stripeFor(id)
	m.Lock()
	return m.Unlock
}

// TryLock attempts to acquire the stripe for id without blocking. It
// returns nil and false if the stripe is already held.
func (g *Gate) TryLock(id types.ShadowIdentity) (func(), bool) {
	m := g.stripeFor(id)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
