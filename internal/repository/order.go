package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/greencart-api/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, amount, discount, coupon_code, address_id,
		status, payment_method, is_paid, checkout_session_id, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders
		(id, user_id, items, amount, discount, coupon_code, address_id,
		 status, payment_method, is_paid, checkout_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	setSessionIDSQL = `UPDATE orders
		SET checkout_session_id = $2, updated_at = now() WHERE id = $1`

	// Check-and-set: only the first call flips the flag, so webhook retries
	// see zero rows affected.
	markPaidSQL = `UPDATE orders
		SET is_paid = TRUE, updated_at = now()
		WHERE id = $1 AND is_paid = FALSE`

	deleteUnpaidSQL = `DELETE FROM orders WHERE id = $1 AND is_paid = FALSE`

	updateStatusSQL = `UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns

	listByUserSQL = `SELECT ` + orderColumns + `
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	listAllSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items are serialized to a JSONB column with their frozen unit prices.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Amount, o.Discount, o.CouponCode,
		o.AddressID, o.Status, o.PaymentMethod, o.IsPaid, o.CheckoutSessionID,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// SetSessionID attaches the checkout session identifier to an order.
func (r *OrderRepository) SetSessionID(ctx context.Context, id, sessionID string) error {
	if _, err := r.pool.Exec(ctx, setSessionIDSQL, id, sessionID); err != nil {
		return errors.Wrapf(err, "set session for order %q", id)
	}
	return nil
}

// MarkPaid flips is_paid from false to true and reports whether this call
// performed the transition.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, markPaidSQL, id)
	if err != nil {
		return false, errors.Wrapf(err, "mark order %q paid", id)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteUnpaid removes an order that is still awaiting payment.
func (r *OrderRepository) DeleteUnpaid(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteUnpaidSQL, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete order %q", id)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus sets the lifecycle status and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateStatusSQL, id, status)
	if err != nil {
		return nil, errors.Wrapf(err, "update status of order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "update status of order %q", id)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listAllSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &o.Amount, &o.Discount, &o.CouponCode,
		&o.AddressID, &o.Status, &o.PaymentMethod, &o.IsPaid,
		&o.CheckoutSessionID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	return o, nil
}
