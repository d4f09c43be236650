// Package store persists orders in MongoDB or PostgreSQL and degrades to a
// permanent no-op mode when neither is reachable.
package store

import (
	"context"
	"log/slog"

	"github.com/go-faster/errors"

	"github.com/chiyaghar/teashop/internal/config"
	"github.com/chiyaghar/teashop/internal/domain"
)

const (
	KindMongo    = "mongo"
	KindPostgres = "postgres"
	KindMemory   = "memory"
)

var ErrDuplicateID = errors.New("order id already stored")

// Backend is a durable order store. FindByID returns (nil, nil) for an
// unknown id; UpdateStatus and MarkPaid report whether a row matched.
type Backend interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error)
	MarkPaid(ctx context.Context, id string, paidAt int64, payment domain.Payment) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Order, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Guarded turns backend errors into failure indicators. A Guarded without a
// backend is unavailable for good and every call is a no-op.
type Guarded struct {
	backend Backend
	kind    string
	logger  *slog.Logger
}

func NewGuarded(backend Backend, kind string, logger *slog.Logger) *Guarded {
	return &Guarded{backend: backend, kind: kind, logger: logger}
}

func Unavailable(logger *slog.Logger) *Guarded {
	return &Guarded{kind: KindMemory, logger: logger}
}

// Open connects to MongoDB when a URI is configured, otherwise to
// PostgreSQL, otherwise returns an unavailable store. Connection failures
// are logged and never retried.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) *Guarded {
	switch {
	case cfg.MongoURI != "":
		b, err := OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("mongo unavailable, using in-memory ledger only", "error", err)
			return Unavailable(logger)
		}
		logger.Info("order store connected", "kind", KindMongo, "database", cfg.MongoDatabase)
		return NewGuarded(b, KindMongo, logger)

	case cfg.PostgresURL != "":
		b, err := OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("postgres unavailable, using in-memory ledger only", "error", err)
			return Unavailable(logger)
		}
		logger.Info("order store connected", "kind", KindPostgres)
		return NewGuarded(b, KindPostgres, logger)

	default:
		logger.Info("no order store configured, using in-memory ledger only")
		return Unavailable(logger)
	}
}

func (g *Guarded) Ready() bool {
	return g.backend != nil
}

func (g *Guarded) Kind() string {
	return g.kind
}

func (g *Guarded) Create(ctx context.Context, order *domain.Order) bool {
	if g.backend == nil {
		return false
	}
	if err := g.backend.Create(ctx, order); err != nil {
		g.logger.Error("failed to store order", "error", err, "order_id", order.ID)
		return false
	}
	return true
}

func (g *Guarded) FindByID(ctx context.Context, id string) *domain.Order {
	if g.backend == nil {
		return nil
	}
	o, err := g.backend.FindByID(ctx, id)
	if err != nil {
		g.logger.Error("failed to find order", "error", err, "order_id", id)
		return nil
	}
	return o
}

func (g *Guarded) UpdateStatus(ctx context.Context, id string, status domain.Status) bool {
	if g.backend == nil {
		return false
	}
	ok, err := g.backend.UpdateStatus(ctx, id, status)
	if err != nil {
		g.logger.Error("failed to update stored order status", "error", err, "order_id", id)
		return false
	}
	return ok
}

func (g *Guarded) MarkPaid(ctx context.Context, id string, paidAt int64, payment domain.Payment) bool {
	if g.backend == nil {
		return false
	}
	ok, err := g.backend.MarkPaid(ctx, id, paidAt, payment)
	if err != nil {
		g.logger.Error("failed to mark stored order paid", "error", err, "order_id", id)
		return false
	}
	return ok
}

func (g *Guarded) ListRecent(ctx context.Context, limit int) []domain.Order {
	if g.backend == nil {
		return nil
	}
	list, err := g.backend.ListRecent(ctx, limit)
	if err != nil {
		g.logger.Error("failed to list stored orders", "error", err)
		return nil
	}
	return list
}

// Ping reports backend health; an unavailable store is not an error.
func (g *Guarded) Ping(ctx context.Context) error {
	if g.backend == nil {
		return nil
	}
	return g.backend.Ping(ctx)
}

func (g *Guarded) Close(ctx context.Context) error {
	if g.backend == nil {
		return nil
	}
	return g.backend.Close(ctx)
}
