package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator determines a coupon's eligibility for a candidate order amount
// and computes the exact discount. Validation never mutates state; usage
// counters are incremented separately via Repository.Redeem, exactly once per
// placed or paid order.
type Validator interface {
	Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error)
}

// RepoValidator implements Validator by looking up rules from a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate checks the rule for the given code against the candidate amount.
// It returns ErrInvalidOrExpired for unknown, inactive, or expired codes,
// ErrExhausted when no usage slots remain, and a MinAmountError when the
// amount does not qualify. The returned discount is advisory: the checkout
// service re-derives it at order-creation time from the same rule.
func (v *RepoValidator) Validate(ctx context.Context, code string, amount decimal.Decimal) (*Discount, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpired) {
			return nil, ErrInvalidOrExpired
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.IsActive || rule.Expired(v.now()) {
		return nil, ErrInvalidOrExpired
	}
	if rule.Exhausted() {
		return nil, ErrExhausted
	}
	if amount.LessThan(rule.MinAmount) {
		return nil, &MinAmountError{Min: rule.MinAmount}
	}

	return &Discount{
		Amount:  Compute(rule, amount),
		Code:    rule.Code,
		Percent: rule.Discount,
	}, nil
}
