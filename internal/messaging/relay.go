package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/chiyaghar/teashop/internal/domain"
)

const (
	statusEvent = "status"

	defaultOutboxSize = 256
)

// LocalPublisher delivers an event to listeners connected to this process.
type LocalPublisher interface {
	Publish(ctx context.Context, orderID, event string, payload any) error
}

type eventWriter interface {
	Publish(ctx context.Context, key string, event any) error
	Close() error
}

type eventReader interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

type statusPayload struct {
	Status domain.Status `json:"status"`
}

// StatusRelay shares status events between API instances. Publish hands
// every event to the local hub first and then queues status changes for
// Kafka; Run forwards that queue in order and reads the topic back with a
// group unique to this instance, skipping changes this instance wrote.
type StatusRelay struct {
	writer eventWriter
	reader eventReader
	local  LocalPublisher
	origin string
	outbox chan domain.StatusChanged
	logger *slog.Logger
	now    func() time.Time
}

func NewStatusRelay(brokers []string, topic string, local LocalPublisher, logger *slog.Logger) *StatusRelay {
	origin := uuid.NewString()
	return newStatusRelay(
		origin,
		NewProducer(brokers, topic),
		NewConsumer(brokers, topic, "teashop-status-"+origin,
			WithStartOffset(kafka.LastOffset),
			WithLogger(logger),
		),
		local,
		logger,
	)
}

func newStatusRelay(origin string, w eventWriter, r eventReader, local LocalPublisher, logger *slog.Logger) *StatusRelay {
	return &StatusRelay{
		writer: w,
		reader: r,
		local:  local,
		origin: origin,
		outbox: make(chan domain.StatusChanged, defaultOutboxSize),
		logger: logger,
		now:    time.Now,
	}
}

// Publish delivers to this instance's listeners before returning. Status
// events are then queued for other instances without waiting on Kafka; a
// full queue drops the remote copy only.
func (r *StatusRelay) Publish(ctx context.Context, orderID, event string, payload any) error {
	if err := r.local.Publish(ctx, orderID, event, payload); err != nil {
		return err
	}
	if event != statusEvent {
		return nil
	}

	status, err := statusOf(payload)
	if err != nil {
		r.logger.Warn("not relaying status event", "error", err, "order_id", orderID)
		return nil
	}

	change := domain.StatusChanged{
		OrderID:   orderID,
		Status:    status,
		Origin:    r.origin,
		Timestamp: r.now().UTC(),
	}
	select {
	case r.outbox <- change:
	default:
		r.logger.Warn("relay queue full, status not shared", "order_id", orderID, "status", status)
	}
	return nil
}

// Run forwards queued changes to Kafka and consumes changes from other
// instances until ctx is cancelled.
func (r *StatusRelay) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.forward(gctx)
		return nil
	})
	g.Go(func() error {
		return r.reader.Consume(gctx, r.handle)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// forward writes one change at a time so Kafka sees each order's changes
// in publish order.
func (r *StatusRelay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-r.outbox:
			if err := r.writer.Publish(ctx, change.OrderID, change); err != nil {
				r.logger.Error("failed to relay status", "error", err, "order_id", change.OrderID, "status", change.Status)
			}
		}
	}
}

func (r *StatusRelay) handle(ctx context.Context, payload []byte) error {
	var change domain.StatusChanged
	if err := json.Unmarshal(payload, &change); err != nil || change.OrderID == "" {
		r.logger.Warn("skipping malformed status change", "error", err)
		return nil
	}
	if change.Origin == r.origin {
		return nil
	}
	if err := r.local.Publish(ctx, change.OrderID, statusEvent, statusPayload{Status: change.Status}); err != nil {
		r.logger.Error("failed to deliver relayed status", "error", err, "order_id", change.OrderID)
	}
	return nil
}

func (r *StatusRelay) Close() error {
	werr := r.writer.Close()
	if err := r.reader.Close(); err != nil {
		return err
	}
	return werr
}

func statusOf(payload any) (domain.Status, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	var p statusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	if _, ok := domain.ParseStatus(string(p.Status)); !ok {
		return "", errors.Errorf("unknown status %q", p.Status)
	}
	return p.Status, nil
}
