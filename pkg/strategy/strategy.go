package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/shadowd/pkg/queue"
)

// Executor performs the work a single sync request represents, returning
// a non-nil error only when the request should be retried. The concrete
// implementation lives in pkg/syncengine; this package only depends on
// the shape.
type Executor interface {
	Execute(ctx context.Context, req queue.Request) error
}

// Strategy is a running sync scheduler: something that repeatedly takes
// requests off a queue and hands them to an executor, until stopped.
type Strategy interface {
	Start()
	Stop()
}

// Immediate drains the queue continuously with a fixed worker count: each
// worker blocks on Take, executes, and loops. This gives the lowest
// propagation latency at the cost of constant background CPU/network
// activity.
type Immediate struct {
	queue    *queue.Queue
	executor Executor
	workers  int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewImmediate returns an Immediate strategy with the given worker count
// (at least 1).
func NewImmediate(q *queue.Queue, executor Executor, workers int) *Immediate {
	if workers < 1 {
		workers = 1
	}
	return &Immediate{queue: q, executor: executor, workers: workers}
}

// Start launches the worker goroutines. Calling Start while already
// running is a no-op.
func (s *Immediate) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go s.run()
	}
}

// Stop signals all workers to exit and waits for them to drain their
// current request. Calling Stop when not running is a no-op.
func (s *Immediate) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Immediate) run() {
	defer s.wg.Done()
	for {
		ctx, cancel := contextUntilStop(s.stopCh)
		req, err := s.queue.Take(ctx)
		cancel()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		s.executeWithRetry(req)
	}
}

// executeWithRetry runs req and, on failure, re-offers it via
// OfferAndTake. When req's key ends up at the queue's head (for example
// when nothing else is queued) it is taken straight back and retried at
// once; otherwise it stays queued in first-insertion order, behind the
// keys already waiting, and this worker goes back to Take.
func (s *Immediate) executeWithRetry(req queue.Request) {
	for {
		if err := s.executor.Execute(context.Background(), req); err == nil {
			return
		}
		next, ok := s.queue.OfferAndTake(req)
		if !ok {
			return
		}
		req = next
	}
}

// Periodic drains the queue completely, then sleeps for delay before
// draining again. This trades propagation latency for predictable,
// batched cloud traffic; appropriate for metered or intermittent links.
type Periodic struct {
	queue    *queue.Queue
	executor Executor
	delay    time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPeriodic returns a Periodic strategy that sleeps delay between
// drain cycles.
func NewPeriodic(q *queue.Queue, executor Executor, delay time.Duration) *Periodic {
	return &Periodic{queue: q, executor: executor, delay: delay}
}

// Start launches the drain-and-sleep loop. Calling Start while already
// running is a no-op.
func (s *Periodic) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit and waits for the current cycle to
// finish. Calling Stop when not running is a no-op.
func (s *Periodic) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Periodic) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.delay)
	defer ticker.Stop()
	for {
		s.drain()
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (s *Periodic) drain() {
	for {
		req, ok := s.queue.Poll()
		if !ok {
			return
		}
		s.executeWithRetry(req)
		select {
		case <-s.stopCh:
			return
		default:
		}
	}
}

// executeWithRetry mirrors Immediate.executeWithRetry: a failed req is
// re-offered via OfferAndTake and retried at once only when its key ends
// up at the queue's head; otherwise it waits in the queue for drain.
func (s *Periodic) executeWithRetry(req queue.Request) {
	for {
		if err := s.executor.Execute(context.Background(), req); err == nil {
			return
		}
		next, ok := s.queue.OfferAndTake(req)
		if !ok {
			return
		}
		req = next
	}
}

// contextUntilStop returns a context that is canceled when stopCh closes,
// so a blocking Take can be interrupted by Stop without adding a second
// cancellation path inside pkg/queue itself.
func contextUntilStop(stopCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
