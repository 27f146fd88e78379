package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates the order lifecycle states.
type Status string

const (
	StatusPlaced     Status = "Order Placed"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod enumerates how an order is paid.
type PaymentMethod string

const (
	// PaymentCOD is cash on delivery. COD orders stay unpaid in the ledger;
	// collection happens out of band.
	PaymentCOD PaymentMethod = "COD"
	// PaymentOnline is card payment via an external checkout session.
	PaymentOnline PaymentMethod = "Online"
)

// Sentinel errors for order operations.
var (
	// ErrInvalidRequest is returned when the cart is empty or no shipping
	// address was supplied.
	ErrInvalidRequest = errors.New("address and items are required")
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for an unknown lifecycle status value.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrNotOwner is returned when a user acts on an order they do not own.
	ErrNotOwner = errors.New("order belongs to another user")
)

// ProductNotFoundError indicates a cart line references an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a cart line has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// LineItem is a single order line. UnitPrice is the product's offer price
// frozen at order creation; the order never reprices.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is a row in the order ledger.
//
// Invariant: Amount == sum(item.UnitPrice * item.Quantity) - Discount, both
// computed once at creation.
type Order struct {
	ID                string
	UserID            string
	Items             []LineItem
	Amount            decimal.Decimal
	Discount          decimal.Decimal
	CouponCode        string
	AddressID         string
	Status            Status
	PaymentMethod     PaymentMethod
	IsPaid            bool
	CheckoutSessionID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Repository defines persistence operations for the order ledger.
//
// Every mutation is a per-row atomic update; the conditional variants return
// whether the row transitioned so callers can keep side effects idempotent.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// SetSessionID attaches the processor-assigned checkout session to an
	// order for later direct reconciliation lookups.
	SetSessionID(ctx context.Context, id, sessionID string) error
	// MarkPaid flips is_paid from false to true. It reports whether this
	// call performed the transition; repeated calls return false.
	MarkPaid(ctx context.Context, id string) (bool, error)
	// DeleteUnpaid removes an order that is still awaiting payment. Deleting
	// an absent or already-paid order is a no-op and reports false.
	DeleteUnpaid(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
}
