package orders

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/chiyaghar/teashop/internal/orders"

type metrics struct {
	created       metric.Int64Counter
	statusChanges metric.Int64Counter
	sideEffects   metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)

	created, err := meter.Int64Counter("teashop.orders.created",
		metric.WithDescription("Orders accepted by the lifecycle manager"),
	)
	if err != nil {
		return nil, err
	}

	statusChanges, err := meter.Int64Counter("teashop.orders.status_changes",
		metric.WithDescription("Status transitions applied to orders"),
	)
	if err != nil {
		return nil, err
	}

	sideEffects, err := meter.Int64Counter("teashop.orders.side_effects",
		metric.WithDescription("Best-effort side effects by kind and outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{created: created, statusChanges: statusChanges, sideEffects: sideEffects}, nil
}

func noopMetrics() *metrics {
	m, _ := newMetrics(noop.NewMeterProvider())
	return m
}

func (m *metrics) recordEffects(ctx context.Context, e Effects) {
	m.recordEffect(ctx, "store", e.Store)
	m.recordEffect(ctx, "notify", e.Notify)
	m.recordEffect(ctx, "publish", e.Publish)
}

func (m *metrics) recordEffect(ctx context.Context, effect string, o Outcome) {
	m.sideEffects.Add(ctx, 1, metric.WithAttributes(
		attribute.String("effect", effect),
		attribute.String("outcome", o.String()),
	))
}
