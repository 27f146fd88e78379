package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/coupon"
)

type applyCouponRequest struct {
	Code   string  `json:"code"`
	Amount float64 `json:"amount"`
}

// ApplyCoupon previews the discount a code grants for a candidate amount.
// Nothing is mutated; the checkout re-derives the discount at order creation.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		fail(w, r, http.StatusBadRequest, "code and amount are required")
		return
	}

	d, err := h.preview.Validate(r.Context(), req.Code, decimal.NewFromFloat(req.Amount))
	if err != nil {
		h.failCoupon(w, r, err)
		return
	}

	amount := d.Amount.InexactFloat64()
	ok(w, r, response{
		Discount: &amount,
		Coupon: map[string]any{
			"code":           d.Code,
			"discount":       d.Percent.InexactFloat64(),
			"discountAmount": amount,
		},
	})
}

// AvailableCoupons lists codes a shopper can still redeem: active, unexpired
// (through end of the expiry day), with usage slots left.
func (h *Handler) AvailableCoupons(w http.ResponseWriter, r *http.Request) {
	all, err := h.coupons.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list coupons", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	available := make([]couponView, 0, len(all))
	for i := range all {
		c := &all[i]
		if !c.IsActive || c.Expired(now) || c.Exhausted() {
			continue
		}
		available = append(available, viewCoupon(c))
	}

	ok(w, r, response{Coupons: available})
}

type createCouponRequest struct {
	Code        string  `json:"code"`
	Discount    float64 `json:"discount"`
	MinAmount   float64 `json:"minAmount"`
	MaxDiscount float64 `json:"maxDiscount"`
	ExpiryDate  string  `json:"expiryDate"`
	UsageLimit  int     `json:"usageLimit"`
}

// CreateCoupon registers a new discount code. Seller only.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.Discount <= 0 {
		fail(w, r, http.StatusBadRequest, "code and discount are required")
		return
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "invalid expiry date")
		return
	}

	usageLimit := req.UsageLimit
	if usageLimit < 0 {
		usageLimit = 0
	}

	rule := &coupon.Rule{
		Code:        req.Code,
		Discount:    decimal.NewFromFloat(req.Discount),
		MinAmount:   decimal.NewFromFloat(req.MinAmount),
		MaxDiscount: decimal.NewFromFloat(req.MaxDiscount),
		ExpiryDate:  expiry,
		IsActive:    true,
		UsageLimit:  usageLimit,
	}
	if err := h.coupons.Create(r.Context(), rule); err != nil {
		zctx.From(r.Context()).Error("create coupon", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ok(w, r, response{Message: "coupon created"})
}

// ListCoupons returns every coupon with usage counters for the seller
// dashboard.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	all, err := h.coupons.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list coupons", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	type adminView struct {
		couponView
		IsActive   bool `json:"isActive"`
		UsageLimit int  `json:"usageLimit"`
		UsedCount  int  `json:"usedCount"`
	}
	out := make([]adminView, len(all))
	for i := range all {
		out[i] = adminView{
			couponView: viewCoupon(&all[i]),
			IsActive:   all[i].IsActive,
			UsageLimit: all[i].UsageLimit,
			UsedCount:  all[i].UsedCount,
		}
	}

	ok(w, r, response{Coupons: out})
}

func (h *Handler) failCoupon(w http.ResponseWriter, r *http.Request, err error) {
	var minErr *coupon.MinAmountError
	switch {
	case errors.Is(err, coupon.ErrInvalidOrExpired):
		fail(w, r, http.StatusUnprocessableEntity, "coupon invalid or expired")
	case errors.Is(err, coupon.ErrExhausted):
		fail(w, r, http.StatusUnprocessableEntity, "coupon usage limit reached")
	case errors.As(err, &minErr):
		fail(w, r, http.StatusUnprocessableEntity, minErr.Error())
	default:
		zctx.From(r.Context()).Error("coupon validation failed", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
	}
}
