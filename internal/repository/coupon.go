package repository

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/greencart-api/internal/domain/coupon"
)

const (
	couponColumns = `code, discount, min_amount, max_discount, expiry_date,
		is_active, usage_limit, used_count, created_at`

	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1) AND is_active`

	listCouponsSQL = `SELECT ` + couponColumns + `
		FROM coupons ORDER BY created_at DESC`

	createCouponSQL = `INSERT INTO coupons
		(code, discount, min_amount, max_discount, expiry_date, is_active, usage_limit)
		VALUES (UPPER($1), $2, $3, $4, $5, $6, $7)`

	// The usage check and the increment are one statement, so two concurrent
	// redemptions of the last slot cannot both succeed.
	redeemCouponSQL = `UPDATE coupons
		SET used_count = used_count + 1, updated_at = now()
		WHERE code = UPPER($1)
		  AND (usage_limit = 0 OR used_count < usage_limit)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrInvalidOrExpired when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidOrExpired
		}
		return nil, errors.Wrapf(err, "find coupon %q", code)
	}
	return &rule, nil
}

// Redeem increments the usage counter while a slot remains. A zero row count
// means the limit was already reached (or the code vanished), reported as
// coupon.ErrExhausted.
func (r *CouponRepository) Redeem(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, redeemCouponSQL, code)
	if err != nil {
		return errors.Wrapf(err, "redeem coupon %q", code)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrExhausted
	}
	return nil
}

// Create persists a new coupon rule. The code is stored upper-cased.
func (r *CouponRepository) Create(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, createCouponSQL,
		strings.ToUpper(rule.Code), rule.Discount, rule.MinAmount,
		rule.MaxDiscount, rule.ExpiryDate, rule.IsActive, rule.UsageLimit,
	)
	if err != nil {
		return errors.Wrapf(err, "create coupon %q", rule.Code)
	}
	return nil
}

// List returns all coupons, newest first.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return pgx.CollectRows(rows, scanCouponRule)
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var rule coupon.Rule
	err := row.Scan(
		&rule.Code, &rule.Discount, &rule.MinAmount, &rule.MaxDiscount,
		&rule.ExpiryDate, &rule.IsActive, &rule.UsageLimit, &rule.UsedCount,
		&rule.CreatedAt,
	)
	return rule, err
}
