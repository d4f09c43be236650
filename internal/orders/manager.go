package orders

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chiyaghar/teashop/internal/domain"
	"github.com/chiyaghar/teashop/internal/notify"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 200

	// EventStatus is the channel event carrying a StatusEvent payload.
	EventStatus = "status"
)

// Store is the durable order store as seen by the manager. Every method is
// best-effort: failures come back as false or nil, never as errors.
type Store interface {
	Ready() bool
	Create(ctx context.Context, order *domain.Order) bool
	FindByID(ctx context.Context, id string) *domain.Order
	UpdateStatus(ctx context.Context, id string, status domain.Status) bool
	MarkPaid(ctx context.Context, id string, paidAt int64, payment domain.Payment) bool
	ListRecent(ctx context.Context, limit int) []domain.Order
}

type Publisher interface {
	Publish(ctx context.Context, orderID, event string, payload any) error
}

type Notifier interface {
	SendSMS(ctx context.Context, to, message string) bool
}

type StatusEvent struct {
	Status domain.Status `json:"status"`
}

type CreateRequest struct {
	Items         []domain.Item
	Customer      *domain.Customer
	PaymentMethod string
}

type Option func(*Manager)

func WithLedger(l *Ledger) Option {
	return func(m *Manager) { m.ledger = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(m *Manager) { m.meterProvider = mp }
}

// Manager owns the order lifecycle. Each operation applies its primary
// mutation to the ledger and then runs the store write, the SMS dispatch and
// the channel publish as independent best-effort side effects.
type Manager struct {
	ledger    *Ledger
	store     Store
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger

	now           func() time.Time
	newID         func() string
	meterProvider metric.MeterProvider
	metrics       *metrics

	seq      [64]sync.Mutex
	inflight sync.WaitGroup
}

func NewManager(store Store, publisher Publisher, notifier Notifier, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		ledger:        NewLedger(),
		store:         store,
		publisher:     publisher,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
		newID:         uuid.NewString,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(m)
	}

	met, err := newMetrics(m.meterProvider)
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		met = noopMetrics()
	}
	m.metrics = met

	return m
}

func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// Wait blocks until every SMS dispatch started so far has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (res *CreateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic while creating order", "panic", r, "stack", string(debug.Stack()))
			res, err = nil, errors.Wrap(ErrCreateFailed, fmt.Sprint(r))
		}
	}()

	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	method := req.PaymentMethod
	if method == "" {
		method = domain.DefaultPaymentMethod
	}

	order := &domain.Order{
		ID:            m.newID(),
		Items:         items,
		PaymentMethod: method,
		TotalNPR:      domain.Total(items),
		Status:        domain.StatusReceived,
		CreatedAt:     domain.Millis(m.now()),
	}
	if req.Customer != nil {
		c := *req.Customer
		order.Customer = &c
	}

	unlock := m.lock(order.ID)
	defer unlock()

	m.ledger.Append(order)

	var effects Effects
	effects.Store = m.storeEffect(ctx, "create", order.ID, func() bool {
		return m.store.Create(ctx, order)
	})
	effects.Notify = m.dispatch(ctx, order.ID, domain.NotificationReceived, order.Phone(), notify.ReceivedMessage(order))
	effects.Publish = m.publish(ctx, order.ID, order.Status)

	m.metrics.created.Add(ctx, 1)
	m.metrics.recordEffects(ctx, effects)
	m.logger.Info("order created", "order_id", order.ID, "total_npr", order.TotalNPR, "items", len(order.Items))

	return &CreateResult{Order: order.Clone(), Effects: effects}, nil
}

// UpdateStatus sets the status of an order found in the ledger or, failing
// that, in the durable store. Any status may follow any other.
func (m *Manager) UpdateStatus(ctx context.Context, id, status string) (*StatusResult, error) {
	st, ok := domain.ParseStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}

	unlock := m.lock(id)
	defer unlock()

	order, ok := m.ledger.Mutate(id, func(o *domain.Order) { o.Status = st })
	if !ok {
		order = m.findInStore(ctx, id)
		if order == nil {
			return nil, ErrNotFound
		}
		order.Status = st
	}

	var effects Effects
	effects.Store = m.storeEffect(ctx, "update status", id, func() bool {
		return m.store.UpdateStatus(ctx, id, st)
	})
	effects.Publish = m.publish(ctx, id, st)
	if st == domain.StatusReady {
		effects.Notify = m.dispatch(ctx, id, domain.NotificationReady, order.Phone(), notify.ReadyMessage(order))
	}

	m.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(st))))
	m.metrics.recordEffects(ctx, effects)
	m.logger.Info("order status updated", "order_id", id, "status", st)

	return &StatusResult{Order: order, Effects: effects}, nil
}

// MarkPaid records a confirmed payment. Only orders held in this process's
// ledger are eligible; ok is false when the id is unknown here.
func (m *Manager) MarkPaid(ctx context.Context, id string, payment domain.Payment) (*PaidResult, bool) {
	unlock := m.lock(id)
	defer unlock()

	paidAt := domain.Millis(m.now())
	order, ok := m.ledger.Mutate(id, func(o *domain.Order) {
		var current domain.Payment
		if o.Payment != nil {
			current = *o.Payment
		}
		merged := current.Merge(payment)
		o.Status = domain.StatusPaid
		o.PaidAt = &paidAt
		o.Payment = &merged
	})
	if !ok {
		m.logger.Warn("payment for unknown order", "order_id", id, "provider", payment.Provider)
		return nil, false
	}

	var effects Effects
	effects.Store = m.storeEffect(ctx, "mark paid", id, func() bool {
		return m.store.MarkPaid(ctx, id, paidAt, *order.Payment)
	})
	effects.Notify = m.dispatch(ctx, id, domain.NotificationPaid, order.Phone(), notify.PaidMessage(order))
	effects.Publish = m.publish(ctx, id, domain.StatusPaid)

	m.metrics.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(domain.StatusPaid))))
	m.metrics.recordEffects(ctx, effects)
	m.logger.Info("order marked paid", "order_id", id, "provider", order.Payment.Provider, "ref_id", order.Payment.ReferenceID)

	return &PaidResult{Order: order, Effects: effects}, true
}

func (m *Manager) Get(ctx context.Context, id string) (*domain.Order, error) {
	if o, ok := m.ledger.Find(id); ok {
		return o, nil
	}
	if o := m.findInStore(ctx, id); o != nil {
		return o, nil
	}
	return nil, ErrNotFound
}

// ListRecent returns the newest orders, preferring a non-empty result from
// the durable store over the ledger.
func (m *Manager) ListRecent(ctx context.Context, limit int) []domain.Order {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	if m.store != nil && m.store.Ready() {
		if list := m.store.ListRecent(ctx, limit); len(list) > 0 {
			if len(list) > limit {
				list = list[:limit]
			}
			return list
		}
	}
	return m.ledger.Recent(limit)
}

func (m *Manager) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &m.seq[h.Sum32()%uint32(len(m.seq))]
	mu.Lock()
	return mu.Unlock
}

func (m *Manager) findInStore(ctx context.Context, id string) (o *domain.Order) {
	if m.store == nil || !m.store.Ready() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in store lookup", "panic", r, "order_id", id)
			o = nil
		}
	}()
	return m.store.FindByID(ctx, id)
}

func (m *Manager) storeEffect(ctx context.Context, op, id string, fn func() bool) (out Outcome) {
	if m.store == nil || !m.store.Ready() {
		return OutcomeSkipped
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in store "+op, "panic", r, "order_id", id)
			out = OutcomeFailed
		}
	}()
	if !fn() {
		m.logger.Warn("store "+op+" failed, ledger copy kept", "order_id", id)
		return OutcomeFailed
	}
	return OutcomeSuccess
}

func (m *Manager) publish(ctx context.Context, id string, status domain.Status) (out Outcome) {
	if m.publisher == nil {
		return OutcomeSkipped
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic publishing status", "panic", r, "order_id", id)
			out = OutcomeFailed
		}
	}()
	if err := m.publisher.Publish(ctx, id, EventStatus, StatusEvent{Status: status}); err != nil {
		m.logger.Error("failed to publish status", "error", err, "order_id", id, "status", status)
		return OutcomeFailed
	}
	return OutcomeSuccess
}

// dispatch starts an SMS send in the background. The request context is
// detached so the send outlives the HTTP request that triggered it.
func (m *Manager) dispatch(ctx context.Context, id string, kind domain.NotificationKind, to, message string) Outcome {
	if m.notifier == nil || to == "" {
		return OutcomeSkipped
	}

	ctx = notify.WithOrder(context.WithoutCancel(ctx), id, kind)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic sending sms", "panic", r, "order_id", id)
			}
		}()
		if !m.notifier.SendSMS(ctx, to, message) {
			m.logger.Warn("sms not delivered", "order_id", id)
		}
	}()
	return OutcomeSuccess
}
