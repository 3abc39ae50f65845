package notify

import (
	"sync"

	"github.com/cuemby/shadowd/pkg/types"
)

// subscriberBuffer bounds how many pending notifications a slow
// subscriber can queue before Publish starts dropping for it.
const subscriberBuffer = 64

// Subscriber is the channel a caller receives notifications on.
type Subscriber chan *types.Notification

// Broker fans a stream of shadow notifications out to any number of
// subscribers. Publish never blocks: a subscriber that isn't keeping up
// has notifications dropped for it rather than stalling the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]types.NotificationKind // "" means all kinds
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[Subscriber]types.NotificationKind)}
}

// Subscribe registers a new subscriber. kind restricts delivery to
// notifications of that kind; pass "" to receive every kind.
func (b *Broker) Subscribe(kind types.NotificationKind) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = kind
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish broadcasts n to every matching subscriber without blocking.
func (b *Broker) Publish(n *types.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, kind := range b.subscribers {
		if kind != "" && kind != n.Kind {
			continue
		}
		select {
		case ch <- n:
		default:
			// subscriber isn't keeping up; skip rather than block the
			// request handler that is publishing this notification.
		}
	}
}

// Close unsubscribes and closes every current subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[Subscriber]types.NotificationKind)
}
