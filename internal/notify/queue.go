package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/chiyaghar/teashop/internal/domain"
)

type orderKey struct{}

type orderRef struct {
	id   string
	kind domain.NotificationKind
}

// WithOrder tags ctx with the order a message is about, so queued
// requests can be keyed and traced per order.
func WithOrder(ctx context.Context, orderID string, kind domain.NotificationKind) context.Context {
	return context.WithValue(ctx, orderKey{}, orderRef{id: orderID, kind: kind})
}

func orderFrom(ctx context.Context) orderRef {
	ref, _ := ctx.Value(orderKey{}).(orderRef)
	return ref
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Queue hands SMS requests to the notification worker through Kafka. When
// the write fails the message is sent directly through fallback instead.
type Queue struct {
	producer EventPublisher
	fallback interface {
		SendSMS(ctx context.Context, to, message string) bool
	}
	logger *slog.Logger
	now    func() time.Time
}

func NewQueue(producer EventPublisher, fallback *Dispatcher, logger *slog.Logger) *Queue {
	q := &Queue{producer: producer, logger: logger, now: time.Now}
	if fallback != nil {
		q.fallback = fallback
	}
	return q
}

func (q *Queue) SendSMS(ctx context.Context, to, message string) bool {
	if to == "" {
		return false
	}

	ref := orderFrom(ctx)
	event := domain.NotificationRequested{
		OrderID:   ref.id,
		Kind:      ref.kind,
		To:        to,
		Message:   message,
		Timestamp: q.now().UTC(),
	}

	key := ref.id
	if key == "" {
		key = to
	}

	if err := q.producer.Publish(ctx, key, event); err != nil {
		q.logger.Error("failed to enqueue sms", "error", err, "order_id", ref.id)
		if q.fallback != nil {
			return q.fallback.SendSMS(ctx, to, message)
		}
		return false
	}

	q.logger.Info("sms enqueued", "order_id", ref.id, "kind", ref.kind)
	return true
}
