package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/coupon"
	"github.com/xenking/greencart-api/internal/domain/order"
	"github.com/xenking/greencart-api/internal/payment"
)

type placeOrderRequest struct {
	Items      []orderItemRequest `json:"items"`
	Address    string             `json:"address"`
	CouponCode string             `json:"couponCode"`
	// Discount is the previewed value from coupon apply. Advisory only; the
	// server recomputes it.
	Discount float64 `json:"discount"`
}

type orderItemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

func (req *placeOrderRequest) toDomain(userID string, method order.PaymentMethod) order.PlaceOrderRequest {
	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{ProductID: it.Product, Quantity: it.Quantity}
	}
	return order.PlaceOrderRequest{
		UserID:         userID,
		Items:          items,
		AddressID:      req.Address,
		PaymentMethod:  method,
		CouponCode:     req.CouponCode,
		ClientDiscount: decimal.NewFromFloat(req.Discount),
	}
}

// PlaceOrderCOD places a cash-on-delivery order. The coupon slot, if any, is
// charged immediately; the order stays unpaid until physical collection.
func (h *Handler) PlaceOrderCOD(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(),
		req.toDomain(UserIDFromContext(r.Context()), order.PaymentCOD))
	if err != nil {
		h.failOrder(w, r, err)
		return
	}

	o := viewOrder(result.Order)
	ok(w, r, response{Message: "order placed", Order: &o})
}

// PlaceOrderOnline places a card-payment order and returns the checkout
// session redirect URL. Coupon usage is deferred to payment confirmation.
func (h *Handler) PlaceOrderOnline(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(),
		req.toDomain(UserIDFromContext(r.Context()), order.PaymentOnline))
	if err != nil {
		h.failOrder(w, r, err)
		return
	}

	ok(w, r, response{URL: result.RedirectURL})
}

// ListUserOrders returns the authenticated user's orders, newest first.
func (h *Handler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListUserOrders(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		h.failOrder(w, r, err)
		return
	}
	ok(w, r, response{Orders: viewOrders(orders)})
}

// ListAllOrders returns every order for the seller dashboard.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAllOrders(r.Context())
	if err != nil {
		h.failOrder(w, r, err)
		return
	}
	ok(w, r, response{Orders: viewOrders(orders)})
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus applies a seller-driven lifecycle change.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), order.Status(req.Status))
	if err != nil {
		h.failOrder(w, r, err)
		return
	}

	v := viewOrder(o)
	ok(w, r, response{Message: "status updated", Order: &v})
}

// ConfirmDelivery lets the owning user mark their order delivered.
func (h *Handler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.ConfirmDelivery(r.Context(),
		chi.URLParam(r, "orderID"), UserIDFromContext(r.Context()))
	if err != nil {
		h.failOrder(w, r, err)
		return
	}

	v := viewOrder(o)
	ok(w, r, response{Message: "delivery confirmed", Order: &v})
}

// SyncPayment is the operator-triggered reconciliation endpoint.
func (h *Handler) SyncPayment(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.SyncPayment(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, order.ErrUnverified) {
			// Not an error state: the processor simply has not confirmed
			// payment yet.
			writeJSON(w, r, http.StatusOK, response{
				Success: false,
				Message: "payment not confirmed yet",
			})
			return
		}
		h.failOrder(w, r, err)
		return
	}

	v := viewOrder(o)
	ok(w, r, response{Message: "payment state synced", Order: &v})
}

// failOrder maps domain errors from the checkout flow to JSON failures.
func (h *Handler) failOrder(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnfErr *order.ProductNotFoundError
		iqErr  *order.InvalidQuantityError
		minErr *coupon.MinAmountError
	)

	switch {
	case errors.Is(err, order.ErrInvalidRequest):
		fail(w, r, http.StatusBadRequest, "address and items are required")
	case errors.As(err, &iqErr):
		fail(w, r, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		fail(w, r, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.Is(err, coupon.ErrInvalidOrExpired):
		fail(w, r, http.StatusUnprocessableEntity, "coupon invalid or expired")
	case errors.Is(err, coupon.ErrExhausted):
		fail(w, r, http.StatusUnprocessableEntity, "coupon usage limit reached")
	case errors.As(err, &minErr):
		fail(w, r, http.StatusUnprocessableEntity, minErr.Error())
	case errors.Is(err, order.ErrInvalidStatus):
		fail(w, r, http.StatusBadRequest, "invalid order status")
	case errors.Is(err, order.ErrNotFound):
		fail(w, r, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrNotOwner):
		fail(w, r, http.StatusForbidden, "order belongs to another user")
	case errors.Is(err, payment.ErrProcessor):
		fail(w, r, http.StatusBadGateway, "payment processor unavailable")
	default:
		zctx.From(r.Context()).Error("order operation failed", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
	}
}
