package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cuemby/shadowd/pkg/types"
)

// Error codes a cloud-side rejection may carry in envelope.ErrorCode,
// distinguishing a genuine version conflict from a validation failure
// that retrying will not fix. An empty or unrecognized code is treated
// as retryable (transport hiccup, 5xx, throttling).
const (
	ErrorCodeConflict = "conflict"
	ErrorCodeNotFound = "not_found"
	ErrorCodeInvalid  = "invalid"
)

// ErrConflict wraps a cloud rejection carrying ErrorCodeConflict or
// ErrorCodeNotFound: the cloud's version disagrees with what the caller
// expected, or the shadow is unexpectedly absent. Callers should
// escalate to a recovery request rather than retry the same call.
var ErrConflict = errors.New("cloud: version conflict")

// ErrRejected wraps a cloud rejection carrying ErrorCodeInvalid: the
// call itself was malformed or unauthorized. Retrying verbatim will not
// help; callers should skip the request instead.
var ErrRejected = errors.New("cloud: rejected")

// envelope is the wire shape exchanged with the remote shadow service on
// every topic this client uses: a correlation token, the shadow identity
// the message concerns, and an opaque document/error payload.
type envelope struct {
	Token     string            `json:"token"`
	Thing     string            `json:"thing"`
	Shadow    string            `json:"shadow"`
	Version   int64             `json:"version,omitempty"`
	Patch     *types.StatePatch `json:"patch,omitempty"`
	Document  *types.Document   `json:"document,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
}

// Client is the typed cloud shadow client (C8). It serializes Get/Update/
// Delete calls into request/response round trips over an injected
// Transport, rate-limiting outbound calls and tracking the transport's
// connection state.
type Client struct {
	transport Transport
	limiter   *rate.Limiter

	connected atomic.Bool

	mu      sync.Mutex
	pending map[string]chan envelope

	connectHandlers    []func()
	disconnectHandlers []func()
}

// Config configures the outbound rate limit. CallsPerSec and Burst follow
// golang.org/x/time/rate's token-bucket semantics directly.
type Config struct {
	CallsPerSec float64
	Burst       int
}

// New constructs a Client bound to transport, rate-limited per cfg.
func New(transport Transport, cfg Config) *Client {
	if cfg.CallsPerSec <= 0 {
		cfg.CallsPerSec = 400
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	c := &Client{
		transport: transport,
		limiter:   rate.NewLimiter(rate.Limit(cfg.CallsPerSec), cfg.Burst),
		pending:   make(map[string]chan envelope),
	}
	c.connected.Store(transport.Connected())
	transport.OnConnectionChange(c.handleConnectionChange)
	return c
}

// OnConnect registers a callback invoked whenever the transport (re)gains
// a connection. Intended for pkg/engine to (re)start the sync strategy.
func (c *Client) OnConnect(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectHandlers = append(c.connectHandlers, handler)
}

// OnDisconnect registers a callback invoked whenever the transport loses
// its connection. Intended for pkg/engine to stop the sync strategy.
func (c *Client) OnDisconnect(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectHandlers = append(c.disconnectHandlers, handler)
}

// Connected reports the transport's last known connection state.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) handleConnectionChange(connected bool) {
	c.connected.Store(connected)
	c.mu.Lock()
	handlers := c.connectHandlers
	if !connected {
		handlers = c.disconnectHandlers
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func topicBase(id types.ShadowIdentity) string {
	if id.Shadow == "" {
		return fmt.Sprintf("shadowd/%s/shadow", id.Thing)
	}
	return fmt.Sprintf("shadowd/%s/shadow/name/%s", id.Thing, id.Shadow)
}

// Get fetches the current cloud-side document for id.
func (c *Client) Get(ctx context.Context, id types.ShadowIdentity) (*types.Document, error) {
	resp, err := c.roundTrip(ctx, topicBase(id)+"/get", envelope{Thing: string(id.Thing), Shadow: string(id.Shadow)})
	if err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// Update sends patch as the new reported/desired state for id and returns
// the resulting document as accepted by the cloud.
func (c *Client) Update(ctx context.Context, id types.ShadowIdentity, patch *types.StatePatch) (*types.Document, error) {
	resp, err := c.roundTrip(ctx, topicBase(id)+"/update", envelope{Thing: string(id.Thing), Shadow: string(id.Shadow), Patch: patch})
	if err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// Delete removes the cloud-side document for id.
func (c *Client) Delete(ctx context.Context, id types.ShadowIdentity, expectedVersion int64) error {
	_, err := c.roundTrip(ctx, topicBase(id)+"/delete", envelope{Thing: string(id.Thing), Shadow: string(id.Shadow), Version: expectedVersion})
	return err
}

// roundTrip publishes req on topic+"/request" with a fresh correlation
// token, subscribes to topic+"/accepted" and topic+"/rejected" for the
// single matching reply, and waits for either a reply or ctx.Done.
func (c *Client) roundTrip(ctx context.Context, topic string, req envelope) (envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return envelope{}, fmt.Errorf("cloud: rate limit wait: %w", err)
	}

	req.Token = uuid.NewString()
	reply := make(chan envelope, 1)

	c.mu.Lock()
	c.pending[req.Token] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.Token)
		c.mu.Unlock()
	}()

	acceptedTopic := topic + "/accepted"
	rejectedTopic := topic + "/rejected"
	deliver := func(payload []byte) {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.Token]
		c.mu.Unlock()
		if !ok {
			return
		}
		select {
		case ch <- env:
		default:
		}
	}
	if err := c.transport.Subscribe(acceptedTopic, deliver); err != nil {
		return envelope{}, fmt.Errorf("cloud: subscribe %s: %w", acceptedTopic, err)
	}
	defer c.transport.Unsubscribe(acceptedTopic)
	if err := c.transport.Subscribe(rejectedTopic, deliver); err != nil {
		return envelope{}, fmt.Errorf("cloud: subscribe %s: %w", rejectedTopic, err)
	}
	defer c.transport.Unsubscribe(rejectedTopic)

	body, err := json.Marshal(req)
	if err != nil {
		return envelope{}, fmt.Errorf("cloud: marshal request: %w", err)
	}
	if err := c.transport.Publish(topic+"/request", body); err != nil {
		return envelope{}, fmt.Errorf("cloud: publish %s: %w", topic, err)
	}

	select {
	case env := <-reply:
		if env.Error != "" {
			switch env.ErrorCode {
			case ErrorCodeConflict, ErrorCodeNotFound:
				return envelope{}, fmt.Errorf("%w: %s", ErrConflict, env.Error)
			case ErrorCodeInvalid:
				return envelope{}, fmt.Errorf("%w: %s", ErrRejected, env.Error)
			default:
				return envelope{}, fmt.Errorf("cloud: rejected: %s", env.Error)
			}
		}
		return env, nil
	case <-ctx.Done():
		return envelope{}, fmt.Errorf("cloud: %s: %w", topic, ctx.Err())
	}
}

// Wait blocks until d has elapsed or ctx is done, returning ctx.Err() in
// the latter case. Used by callers that need to back off between cloud
// calls beyond what the limiter alone enforces.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
