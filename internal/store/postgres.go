package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/lib/pq"

	"github.com/chiyaghar/teashop/internal/domain"
	"github.com/chiyaghar/teashop/internal/telemetry"
)

const pgUniqueViolation = "23505"

type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// OpenPostgres opens an instrumented connection pool. The orders table is
// expected to exist already (see cmd/migrate).
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	db, err := telemetry.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres")
	}
	return NewPostgresBackend(db), nil
}

func (r *PostgresBackend) Create(ctx context.Context, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return errors.Wrap(err, "marshal items")
	}
	customer, err := nullableJSON(order.Customer)
	if err != nil {
		return errors.Wrap(err, "marshal customer")
	}
	payment, err := nullableJSON(order.Payment)
	if err != nil {
		return errors.Wrap(err, "marshal payment")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (id, items, customer, payment_method, total_npr, status, created_at, paid_at, payment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, string(items), customer, order.PaymentMethod, order.TotalNPR, order.Status, order.CreatedAt, order.PaidAt, payment)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return errors.Wrap(ErrDuplicateID, order.ID)
		}
		return errors.Wrap(err, "insert order")
	}
	return nil
}

const selectOrder = `
	SELECT id, items, customer, payment_method, total_npr, status, created_at, paid_at, payment
	FROM orders`

func (r *PostgresBackend) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

func (r *PostgresBackend) UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return false, errors.Wrap(err, "update status")
	}
	return affected(result)
}

func (r *PostgresBackend) MarkPaid(ctx context.Context, id string, paidAt int64, payment domain.Payment) (bool, error) {
	data, err := json.Marshal(payment)
	if err != nil {
		return false, errors.Wrap(err, "marshal payment")
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, paid_at = $2, payment = $3, updated_at = NOW()
		WHERE id = $4
	`, domain.StatusPaid, paidAt, string(data), id)
	if err != nil {
		return false, errors.Wrap(err, "mark paid")
	}
	return affected(result)
}

func (r *PostgresBackend) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	defer func() { _ = rows.Close() }()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *PostgresBackend) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresBackend) Close(context.Context) error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var (
		o                       domain.Order
		items, customer, paymnt []byte
		paidAt                  sql.NullInt64
	)
	if err := s.Scan(&o.ID, &items, &customer, &o.PaymentMethod, &o.TotalNPR, &o.Status, &o.CreatedAt, &paidAt, &paymnt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal items")
	}
	if len(customer) > 0 {
		o.Customer = &domain.Customer{}
		if err := json.Unmarshal(customer, o.Customer); err != nil {
			return nil, errors.Wrap(err, "unmarshal customer")
		}
	}
	if len(paymnt) > 0 {
		o.Payment = &domain.Payment{}
		if err := json.Unmarshal(paymnt, o.Payment); err != nil {
			return nil, errors.Wrap(err, "unmarshal payment")
		}
	}
	if paidAt.Valid {
		at := paidAt.Int64
		o.PaidAt = &at
	}
	return &o, nil
}

// nullableJSON encodes v for a JSONB parameter. lib/pq sends []byte as
// bytea, so the document goes over the wire as text.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
