// Package payment talks to the external card-payment processor: creating
// hosted checkout sessions, looking them up for reconciliation, and verifying
// signed webhook notifications.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrProcessor is returned when the processor cannot be reached or rejects a
// request. It is distinct from validation errors so callers can surface
// "processor unavailable" instead of a generic failure.
var ErrProcessor = errors.New("payment processor unavailable")

// ErrSessionNotFound is returned when no checkout session matches the given
// identifier.
var ErrSessionNotFound = errors.New("checkout session not found")

// SessionStatus values reported by the processor.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// Metadata is the opaque order context attached to a checkout session at
// creation and echoed back on webhook notifications.
type Metadata struct {
	OrderID    string
	UserID     string
	CouponCode string
	Discount   decimal.Decimal
}

// Line is a display line for the processor-hosted checkout page.
type Line struct {
	Name       string
	UnitAmount decimal.Decimal
	Quantity   int
}

// Session is a processor-hosted checkout flow the customer is redirected to.
type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	Metadata      Metadata
}

// CreateSessionParams holds the input for creating a checkout session.
type CreateSessionParams struct {
	Lines      []Line
	Metadata   Metadata
	SuccessURL string
	CancelURL  string
}

// Client is the processor API surface the checkout flow needs.
type Client interface {
	// CreateSession opens a hosted checkout session and returns its redirect
	// target.
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	// GetSession looks up a session directly by its processor-assigned
	// identifier. Used by manual reconciliation.
	GetSession(ctx context.Context, id string) (*Session, error)
}
