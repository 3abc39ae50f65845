package cloud

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/shadowd/pkg/queue"
	"github.com/cuemby/shadowd/pkg/types"
)

// Enqueuer accepts sync requests produced by inbound cloud push messages.
// pkg/queue.Queue satisfies this.
type Enqueuer interface {
	Offer(req queue.Request) error
}

// Subscriptions tracks which shadow identities this client has an active
// cloud-push subscription for, and turns inbound push messages (the cloud
// telling the device its desired state changed, or that the document was
// deleted cloud-side) into queue requests.
type Subscriptions struct {
	client   *Client
	enqueuer Enqueuer

	mu     sync.Mutex
	active map[types.ShadowIdentity]bool
}

// NewSubscriptions returns a Subscriptions bound to client, delivering
// cloud push messages into enqueuer.
func NewSubscriptions(client *Client, enqueuer Enqueuer) *Subscriptions {
	return &Subscriptions{
		client:   client,
		enqueuer: enqueuer,
		active:   make(map[types.ShadowIdentity]bool),
	}
}

// Subscribe opens the cloud-push topics for id: desired-state updates and
// deletion notices. Safe to call more than once for the same id.
func (s *Subscriptions) Subscribe(id types.ShadowIdentity) error {
	s.mu.Lock()
	if s.active[id] {
		s.mu.Unlock()
		return nil
	}
	s.active[id] = true
	s.mu.Unlock()

	base := topicBase(id)
	if err := s.client.transport.Subscribe(base+"/update/delta", s.onDelta(id)); err != nil {
		return err
	}
	if err := s.client.transport.Subscribe(base+"/delete/delta", s.onDelete(id)); err != nil {
		return err
	}
	return nil
}

// Unsubscribe closes the cloud-push topics for id.
func (s *Subscriptions) Unsubscribe(id types.ShadowIdentity) error {
	s.mu.Lock()
	if !s.active[id] {
		s.mu.Unlock()
		return nil
	}
	delete(s.active, id)
	s.mu.Unlock()

	base := topicBase(id)
	if err := s.client.transport.Unsubscribe(base + "/update/delta"); err != nil {
		return err
	}
	return s.client.transport.Unsubscribe(base + "/delete/delta")
}

// Active reports whether id currently has a live push subscription.
func (s *Subscriptions) Active(id types.ShadowIdentity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[id]
}

func (s *Subscriptions) onDelta(id types.ShadowIdentity) func([]byte) {
	return func(payload []byte) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil || env.Document == nil {
			return
		}
		s.enqueuer.Offer(queue.NewCloudUpdate(id, env.Document))
	}
}

func (s *Subscriptions) onDelete(id types.ShadowIdentity) func([]byte) {
	return func([]byte) {
		s.enqueuer.Offer(queue.NewCloudDelete(id))
	}
}
