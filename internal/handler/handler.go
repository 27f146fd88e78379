// Package handler exposes the storefront checkout API over HTTP. Responses
// carry an explicit success flag alongside the status code, matching what the
// web client expects.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/greencart-api/internal/domain/auth"
	"github.com/xenking/greencart-api/internal/domain/coupon"
	"github.com/xenking/greencart-api/internal/domain/order"
	"github.com/xenking/greencart-api/internal/domain/product"
	"github.com/xenking/greencart-api/internal/domain/user"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// JWTSecret verifies customer bearer tokens.
	JWTSecret []byte
	// APIKeyPepper keys the HMAC used to hash seller API keys.
	APIKeyPepper []byte
	// WebhookSecret verifies payment processor notifications.
	WebhookSecret []byte
	// ImageBaseURL is prepended to relative product image paths.
	ImageBaseURL string
}

// Handler wires the domain services to HTTP routes.
type Handler struct {
	cfg      Config
	products product.Repository
	coupons  coupon.Repository
	preview  coupon.Validator
	orders   *order.Service
	users    user.Repository
	apikeys  auth.APIKeyRepository
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Repository,
	preview coupon.Validator,
	orders *order.Service,
	users user.Repository,
	apikeys auth.APIKeyRepository,
) *Handler {
	return &Handler{
		cfg:      cfg,
		products: products,
		coupons:  coupons,
		preview:  preview,
		orders:   orders,
		users:    users,
		apikeys:  apikeys,
	}
}

// Routes builds the chi router for the full API surface. The payment webhook
// is mounted outside /api so the raw body reaches signature verification
// untouched by any body-consuming middleware.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook/payment", h.PaymentWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{productID}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireUser)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/cod", h.PlaceOrderCOD)
				r.Post("/stripe", h.PlaceOrderOnline)
				r.Get("/user", h.ListUserOrders)
				r.Put("/{orderID}/confirm-delivery", h.ConfirmDelivery)
			})

			r.Post("/coupon/apply", h.ApplyCoupon)
			r.Get("/coupon/available", h.AvailableCoupons)
			r.Post("/cart/update", h.UpdateCart)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSeller)

			r.Get("/orders/seller", h.ListAllOrders)
			r.Put("/orders/{orderID}/status", h.UpdateOrderStatus)
			r.Post("/orders/{orderID}/sync-payment", h.SyncPayment)

			r.Post("/coupon/create", h.CreateCoupon)
			r.Get("/coupon/list", h.ListCoupons)
		})
	})

	return r
}
