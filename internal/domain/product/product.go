package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist or has
// been soft-deleted.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. During checkout a
// product is a read-only snapshot: the order freezes OfferPrice at creation
// time and never reprices.
type Product struct {
	ID          string
	Name        string
	Category    string
	Description string
	Price       decimal.Decimal
	OfferPrice  decimal.Decimal
	InStock     bool
	Deleted     bool
	Image       string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs resolves all requested products in a single query so checkout
	// computes totals from one consistent price set.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
