// Package broadcast fans order status events out to live listeners.
//
// Each subscription owns a bounded queue drained by a single writer
// goroutine, so a listener sees frames in publish order and a slow listener
// never blocks publishers or other listeners. A listener whose queue
// overflows or whose write fails is dropped.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

const (
	EventConnected = "connected"

	DefaultKeepAlive = 20 * time.Second
	DefaultQueueSize = 16
)

type Frame struct {
	Event     string
	Data      json.RawMessage
	KeepAlive bool
}

type Listener interface {
	Send(Frame) error
}

type Option func(*Hub)

func WithKeepAlive(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}

	keepAlive time.Duration
	queueSize int
	logger    *slog.Logger
}

func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		topics:    make(map[string]map[*Subscription]struct{}),
		keepAlive: DefaultKeepAlive,
		queueSize: DefaultQueueSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type Subscription struct {
	hub      *Hub
	orderID  string
	listener Listener
	queue    chan Frame
	cancel   context.CancelFunc
	done     chan struct{}
}

// Done is closed once the subscription has been removed from the hub and
// its writer has stopped touching the listener.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.cancel()
}

type connectedPayload struct {
	OrderID string `json:"orderId"`
}

// Subscribe registers listener for orderID. The writer sends a connected
// frame before anything published afterwards. The subscription ends when ctx is done, Close is called,
// or a write to the listener fails.
func (h *Hub) Subscribe(ctx context.Context, orderID string, listener Listener) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		hub:      h,
		orderID:  orderID,
		listener: listener,
		queue:    make(chan Frame, h.queueSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.topics[orderID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[orderID] = subs
	}
	subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("listener subscribed", "order_id", orderID)

	go s.run(ctx)
	return s
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.hub.remove(s)
	defer s.cancel()

	data, _ := json.Marshal(connectedPayload{OrderID: s.orderID})
	if err := s.listener.Send(Frame{Event: EventConnected, Data: data}); err != nil {
		s.hub.logger.Debug("listener write failed", "error", err, "order_id", s.orderID)
		return
	}

	ticker := time.NewTicker(s.hub.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.queue:
			if err := s.listener.Send(f); err != nil {
				s.hub.logger.Debug("listener write failed", "error", err, "order_id", s.orderID)
				return
			}
		case <-ticker.C:
			if err := s.listener.Send(Frame{KeepAlive: true}); err != nil {
				s.hub.logger.Debug("listener keep-alive failed", "error", err, "order_id", s.orderID)
				return
			}
		}
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.topics[s.orderID]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.topics, s.orderID)
	}
	h.logger.Debug("listener removed", "order_id", s.orderID)
}

// Publish queues event for every current subscriber of orderID. Having no
// subscribers is not an error.
func (h *Hub) Publish(_ context.Context, orderID, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal event payload")
	}
	h.PublishRaw(orderID, event, data)
	return nil
}

// PublishRaw is Publish for an already encoded payload.
func (h *Hub) PublishRaw(orderID, event string, data json.RawMessage) {
	f := Frame{Event: event, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.topics[orderID] {
		select {
		case s.queue <- f:
		default:
			h.logger.Warn("listener queue full, dropping listener", "order_id", orderID)
			s.cancel()
		}
	}
}

// Count returns the number of live subscribers for orderID.
func (h *Hub) Count(orderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[orderID])
}

// Topics returns the number of orders with at least one subscriber.
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics)
}

// Close ends every current subscription so that blocked stream handlers
// return. The hub stays usable for new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.topics {
		for s := range subs {
			s.cancel()
		}
	}
}
