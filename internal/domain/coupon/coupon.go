package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for coupon validation and redemption.
var (
	// ErrInvalidOrExpired is returned when a coupon code is unknown,
	// deactivated, or past its expiry date.
	ErrInvalidOrExpired = errors.New("coupon invalid or expired")
	// ErrExhausted is returned when a coupon has no usage slots left.
	ErrExhausted = errors.New("coupon usage limit reached")
)

// MinAmountError indicates the order amount is below the coupon's minimum.
type MinAmountError struct {
	Min decimal.Decimal
}

func (e *MinAmountError) Error() string {
	return "order amount below coupon minimum of " + e.Min.String()
}

// Rule defines a percentage coupon with eligibility constraints.
//
// UsageLimit of 0 means unlimited uses. MaxDiscount of 0 means the computed
// discount is uncapped. ExpiryDate is valid through the end of that calendar
// day, inclusive.
type Rule struct {
	Code        string
	Discount    decimal.Decimal // percent, e.g. 10 for 10%
	MinAmount   decimal.Decimal
	MaxDiscount decimal.Decimal
	ExpiryDate  time.Time
	IsActive    bool
	UsageLimit  int
	UsedCount   int
	CreatedAt   time.Time
}

// Expired reports whether the rule is past its validity window at the given
// instant. Expiry is inclusive through 23:59:59.999999999 of the expiry date.
func (r *Rule) Expired(now time.Time) bool {
	endOfDay := time.Date(
		r.ExpiryDate.Year(), r.ExpiryDate.Month(), r.ExpiryDate.Day(),
		23, 59, 59, int(time.Second-time.Nanosecond),
		r.ExpiryDate.Location(),
	)
	return now.After(endOfDay)
}

// Exhausted reports whether the rule has no usage slots left.
func (r *Rule) Exhausted() bool {
	return r.UsageLimit > 0 && r.UsedCount >= r.UsageLimit
}

// Discount holds the computed discount and a redacted coupon summary safe to
// return to clients.
type Discount struct {
	Amount  decimal.Decimal
	Code    string
	Percent decimal.Decimal
}

// Repository provides lookup and redemption of coupon rules.
type Repository interface {
	// FindByCode looks up a coupon by code, case-insensitively. Inactive
	// coupons are treated as absent and yield ErrInvalidOrExpired.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// Redeem increments the usage counter, but only while a usage slot
	// remains. It returns ErrExhausted when the limit has been reached.
	// The check and the increment are a single atomic write.
	Redeem(ctx context.Context, code string) error
	// Create persists a new coupon rule.
	Create(ctx context.Context, rule *Rule) error
	// List returns all coupons, newest first.
	List(ctx context.Context) ([]Rule, error)
}
