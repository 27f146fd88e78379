package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/greencart-api/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, name, email, cart_items FROM users WHERE id = $1`

	updateCartSQL = `UPDATE users
		SET cart_items = $2, updated_at = now() WHERE id = $1`

	clearCartSQL = `UPDATE users
		SET cart_items = '{}'::jsonb, updated_at = now() WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL. The cart
// snapshot lives in a JSONB column on the user row.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var (
		u        user.User
		cartJSON []byte
	)
	err := r.pool.QueryRow(ctx, getUserByIDSQL, id).
		Scan(&u.ID, &u.Name, &u.Email, &cartJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get user %q", id)
	}
	if err := json.Unmarshal(cartJSON, &u.Cart); err != nil {
		return nil, errors.Wrap(err, "unmarshal cart")
	}
	return &u, nil
}

// UpdateCart replaces the user's cart snapshot blob.
func (r *UserRepository) UpdateCart(ctx context.Context, id string, cart user.Cart) error {
	cartJSON, err := json.Marshal(cart)
	if err != nil {
		return errors.Wrap(err, "marshal cart")
	}
	if _, err := r.pool.Exec(ctx, updateCartSQL, id, cartJSON); err != nil {
		return errors.Wrapf(err, "update cart for user %q", id)
	}
	return nil
}

// ClearCart empties the user's cart snapshot. Idempotent.
func (r *UserRepository) ClearCart(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, id); err != nil {
		return errors.Wrapf(err, "clear cart for user %q", id)
	}
	return nil
}
