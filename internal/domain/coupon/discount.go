package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute calculates the discount the rule grants for the given order amount:
// amount * percent / 100, clamped to MaxDiscount when a cap is set.
//
// Compute assumes the rule is otherwise eligible; callers check activity,
// expiry, usage, and minimum amount first (see Validator).
func Compute(rule *Rule, amount decimal.Decimal) decimal.Decimal {
	d := amount.Mul(rule.Discount).Div(hundred)
	if rule.MaxDiscount.IsPositive() && d.GreaterThan(rule.MaxDiscount) {
		d = rule.MaxDiscount
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d.Round(2)
}
