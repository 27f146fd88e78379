package user

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// Cart is the client-held cart snapshot, denormalized onto the user record:
// product ID -> quantity. It is not authoritative for pricing; checkout
// recomputes everything from the catalog.
type Cart map[string]int

// User represents a shopper account. Only the fields checkout touches are
// modeled here.
type User struct {
	ID    string
	Name  string
	Email string
	Cart  Cart
}

// Repository defines persistence operations for user records.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	// UpdateCart replaces the user's cart snapshot blob.
	UpdateCart(ctx context.Context, id string, cart Cart) error
	// ClearCart empties the user's cart snapshot. Clearing an already empty
	// cart is a no-op, so repeated webhook deliveries are safe.
	ClearCart(ctx context.Context, id string) error
}
