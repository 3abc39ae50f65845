package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/cuemby/shadowd/pkg/types"
)

// DirectionSource resolves the configured sync direction for a shadow,
// consulted on a Merge collision so the "full-or-directional" cells of
// the merge table pick the right recovery request. A Queue with no
// DirectionSource set falls back to types.SyncDirectionBetween.
type DirectionSource interface {
	Direction(id types.ShadowIdentity) (types.SyncDirection, types.DataOwner)
}

// ErrFull is returned by Offer when the queue is at capacity and holds a
// key distinct from the one being offered (a merge into an existing key
// never counts against capacity).
var ErrFull = errors.New("queue: full")

// ErrClosed is returned by blocking operations on a closed queue.
var ErrClosed = errors.New("queue: closed")

const defaultCapacity = 1024

// Queue is a bounded, blocking, merge-deduplicating request queue: at
// most one pending Request per shadow identity. A new arrival for a key
// already queued is merged with the pending one via Merge instead of
// being appended, so the queue never grows past one entry per distinct
// key regardless of how many updates a busy shadow accumulates between
// drains.
type Queue struct {
	mu         sync.Mutex
	capacity   int
	order      []types.ShadowIdentity
	pending    map[types.ShadowIdentity]Request
	closed     bool
	directions DirectionSource

	// changed is closed and replaced every time the queue's state
	// changes (insert, pop, close, capacity growth). A waiter holds a
	// reference to the current channel, releases the lock, and blocks
	// on it alongside ctx.Done(), giving Take a cancellable wait without
	// the lock-reacquisition hazards of pairing sync.Cond with
	// context.AfterFunc.
	changed chan struct{}
}

// New creates a Queue with the default capacity (1024).
func New() *Queue {
	return NewWithCapacity(defaultCapacity)
}

// NewWithCapacity creates a Queue bounded to capacity distinct keys.
func NewWithCapacity(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{
		capacity: capacity,
		pending:  make(map[types.ShadowIdentity]Request),
		changed:  make(chan struct{}),
	}
}

// SetDirectionSource wires a DirectionSource used to resolve the
// "full-or-directional" merge cells. Safe to call at any time; takes
// effect on the next collision.
func (q *Queue) SetDirectionSource(ds DirectionSource) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.directions = ds
}

// wakeLocked must be called with q.mu held; it releases every current
// waiter and arms a fresh channel for the next one.
func (q *Queue) wakeLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Put inserts req, merging it with any pending request for the same key,
// blocking while the queue is full and req's key isn't already present.
func (q *Queue) Put(req Request) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		_, exists := q.pending[req.Key()]
		if exists || len(q.pending) < q.capacity {
			q.insertLocked(req)
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()
		<-wait
	}
}

// Offer is Put's non-blocking counterpart: it returns ErrFull immediately
// instead of waiting for room.
func (q *Queue) Offer(req Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, exists := q.pending[req.Key()]; !exists && len(q.pending) >= q.capacity {
		return ErrFull
	}
	q.insertLocked(req)
	return nil
}

// insertLocked must be called with q.mu held.
func (q *Queue) insertLocked(req Request) {
	if existing, ok := q.pending[req.Key()]; ok {
		direction := types.SyncDirectionBetween
		if q.directions != nil {
			direction, _ = q.directions.Direction(req.Key())
		}
		q.pending[req.Key()] = Merge(existing, req, direction)
		q.wakeLocked()
		return
	}
	q.pending[req.Key()] = req
	q.order = append(q.order, req.Key())
	q.wakeLocked()
}

// Take blocks until a request is available (or ctx is done) and returns
// it, removing it from the queue in first-insertion order. Pass a nil
// ctx to wait indefinitely.
func (q *Queue) Take(ctx context.Context) (Request, error) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			req := q.popLocked()
			q.mu.Unlock()
			return req, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		wait := q.changed
		q.mu.Unlock()

		if ctx == nil {
			<-wait
			continue
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// popLocked must be called with q.mu held and len(q.order) > 0.
func (q *Queue) popLocked() Request {
	key := q.order[0]
	q.order = q.order[1:]
	req := q.pending[key]
	delete(q.pending, key)
	q.wakeLocked()
	return req
}

// Poll is Take's non-blocking counterpart: it returns (nil, false) if
// nothing is queued right now.
func (q *Queue) Poll() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// OfferAndTake merges req into the queue and, if req's key now sits at
// the head, takes it straight back out. pkg/strategy's workers use this
// to immediately retry a request they just failed to process, without
// another worker taking an unrelated key first; if req does not end up
// at the head it stays queued in first-insertion order.
func (q *Queue) OfferAndTake(req Request) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false
	}
	q.insertLocked(req)
	if len(q.order) > 0 && q.order[0] == req.Key() {
		return q.popLocked(), true
	}
	return nil, false
}

// Remove drops any pending request for key without returning it.
func (q *Queue) Remove(key types.ShadowIdentity) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[key]; !ok {
		return
	}
	delete(q.pending, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.wakeLocked()
}

// Clear drops every pending request.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = make(map[types.ShadowIdentity]Request)
	q.order = nil
	q.wakeLocked()
}

// Len reports how many distinct keys are currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// UpdateCapacity changes the queue's capacity, waking any blocked
// producers if it grew.
func (q *Queue) UpdateCapacity(capacity int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	q.capacity = capacity
	q.wakeLocked()
}

// Close marks the queue closed, waking every blocked Put/Take with
// ErrClosed. Already-queued requests remain retrievable via Poll.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.wakeLocked()
}
