package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/coupon"
	"github.com/xenking/greencart-api/internal/domain/product"
	"github.com/xenking/greencart-api/internal/domain/user"
	"github.com/xenking/greencart-api/internal/payment"
)

// Notifier publishes order lifecycle events. Implementations must be
// best-effort: a broker failure never fails the request that triggered it.
type Notifier interface {
	OrderPlaced(ctx context.Context, o *Order)
	OrderPaid(ctx context.Context, o *Order)
	OrderRemoved(ctx context.Context, orderID string)
	OrderStatusChanged(ctx context.Context, o *Order)
}

// NopNotifier discards all events. Used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) OrderPlaced(context.Context, *Order)        {}
func (NopNotifier) OrderPaid(context.Context, *Order)          {}
func (NopNotifier) OrderRemoved(context.Context, string)       {}
func (NopNotifier) OrderStatusChanged(context.Context, *Order) {}

// ItemInput is a cart line as submitted by the client: product reference and
// quantity only. Prices always come from the catalog.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
//
// ClientDiscount is the discount the client previewed via coupon apply. It is
// a hint only: the service re-validates the coupon and recomputes the
// discount server-side, and the server value wins on mismatch.
type PlaceOrderRequest struct {
	UserID         string
	Items          []ItemInput
	AddressID      string
	PaymentMethod  PaymentMethod
	CouponCode     string
	ClientDiscount decimal.Decimal
}

// PlaceOrderResult holds the output of a successfully placed order. For the
// online path, RedirectURL points at the processor-hosted checkout session.
type PlaceOrderResult struct {
	Order       *Order
	RedirectURL string
}

// Service is the checkout orchestrator and payment confirmation handler. It
// validates carts against the catalog and coupon stores, computes the final
// charge, writes the order ledger, and reconciles asynchronous payment state.
type Service struct {
	products  product.Repository
	coupons   coupon.Repository
	validator coupon.Validator
	orders    Repository
	users     user.Repository
	processor payment.Client
	notifier  Notifier

	successURL string
	cancelURL  string

	now   func() time.Time
	newID func() string
}

// ServiceConfig holds non-dependency settings for the Service.
type ServiceConfig struct {
	// SuccessURL and CancelURL are where the processor redirects the
	// customer after a checkout session finishes.
	SuccessURL string
	CancelURL  string
}

// NewService creates the checkout Service with its domain dependencies.
func NewService(
	cfg ServiceConfig,
	products product.Repository,
	coupons coupon.Repository,
	validator coupon.Validator,
	orders Repository,
	users user.Repository,
	processor payment.Client,
	notifier Notifier,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		products:   products,
		coupons:    coupons,
		validator:  validator,
		orders:     orders,
		users:      users,
		processor:  processor,
		notifier:   notifier,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// PlaceOrder validates the cart, recomputes the coupon discount server-side,
// persists the order, and for online payment creates the checkout session.
//
// Coupon usage is counted at placement for COD and deferred to payment
// confirmation for online orders, so abandoned sessions never consume a slot.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.AddressID == "" || len(req.Items) == 0 {
		return nil, ErrInvalidRequest
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	// Freeze line items with catalog offer prices and sum the subtotal.
	items := make([]LineItem, len(req.Items))
	subtotal := decimal.Zero
	for i, in := range req.Items {
		price := products[i].OfferPrice
		items[i] = LineItem{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: price,
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(in.Quantity))))
	}

	// Re-validate the coupon at creation time. The client-previewed discount
	// is never trusted.
	discount := decimal.Zero
	if req.CouponCode != "" {
		d, err := s.validator.Validate(ctx, req.CouponCode, subtotal)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = d.Amount
		if !req.ClientDiscount.IsZero() && !req.ClientDiscount.Equal(discount) {
			zctx.From(ctx).Info("client discount hint ignored",
				zap.String("coupon", d.Code),
				zap.String("client", req.ClientDiscount.String()),
				zap.String("server", discount.String()),
			)
		}
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	o := &Order{
		ID:            s.newID(),
		UserID:        req.UserID,
		Items:         items,
		Amount:        total.Round(2),
		Discount:      discount.Round(2),
		CouponCode:    req.CouponCode,
		AddressID:     req.AddressID,
		Status:        StatusPlaced,
		PaymentMethod: req.PaymentMethod,
		IsPaid:        false,
		CreatedAt:     s.now(),
	}
	// COD charges the coupon slot before the ledger write. The conditional
	// redeem closes the race on the last slot: exactly one of two concurrent
	// placements wins, and the loser is rejected without leaving an order
	// behind.
	if req.PaymentMethod == PaymentCOD && o.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, o.CouponCode); err != nil {
			return nil, errors.Wrap(err, "redeem coupon")
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	switch req.PaymentMethod {
	case PaymentCOD:
		s.notifier.OrderPlaced(ctx, o)
		return &PlaceOrderResult{Order: o}, nil

	case PaymentOnline:
		session, err := s.createSession(ctx, o, products)
		if err != nil {
			// The order row stays in awaiting-payment state; an operator can
			// recover via SyncPayment once the processor is reachable again.
			return nil, err
		}
		o.CheckoutSessionID = session.ID
		if err := s.orders.SetSessionID(ctx, o.ID, session.ID); err != nil {
			return nil, errors.Wrap(err, "attach session to order")
		}
		s.notifier.OrderPlaced(ctx, o)
		return &PlaceOrderResult{Order: o, RedirectURL: session.URL}, nil

	default:
		return nil, errors.Errorf("unsupported payment method %q", req.PaymentMethod)
	}
}

// resolveProducts batch-fetches all cart products and returns them in cart
// line order. The single query keeps the price set consistent even when the
// catalog changes mid-checkout.
func (s *Service) resolveProducts(ctx context.Context, items []ItemInput) ([]product.Product, error) {
	ids := make([]string, len(items))
	for i, in := range items {
		if in.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: in.ProductID}
		}
		ids[i] = in.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	resolved := make([]product.Product, len(items))
	for i, in := range items {
		p, ok := byID[in.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: in.ProductID}
		}
		resolved[i] = p
	}
	return resolved, nil
}

func (s *Service) createSession(ctx context.Context, o *Order, products []product.Product) (*payment.Session, error) {
	lines := make([]payment.Line, len(o.Items))
	for i, item := range o.Items {
		lines[i] = payment.Line{
			Name:       products[i].Name,
			UnitAmount: item.UnitPrice,
			Quantity:   item.Quantity,
		}
	}

	session, err := s.processor.CreateSession(ctx, payment.CreateSessionParams{
		Lines: lines,
		Metadata: payment.Metadata{
			OrderID:    o.ID,
			UserID:     o.UserID,
			CouponCode: o.CouponCode,
			Discount:   o.Discount,
		},
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return session, nil
}

// UpdateStatus applies a seller-driven lifecycle change.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status Status) (*Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	o, err := s.orders.UpdateStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}
	s.notifier.OrderStatusChanged(ctx, o)
	return o, nil
}

// ConfirmDelivery lets the owning user mark their order delivered.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOwner
	}
	// A cancelled order has nothing to deliver.
	if o.Status == StatusCancelled {
		return nil, ErrInvalidStatus
	}
	updated, err := s.orders.UpdateStatus(ctx, orderID, StatusDelivered)
	if err != nil {
		return nil, err
	}
	s.notifier.OrderStatusChanged(ctx, updated)
	return updated, nil
}

// ListUserOrders returns the user's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListAllOrders returns every order in the ledger, newest first.
func (s *Service) ListAllOrders(ctx context.Context) ([]Order, error) {
	return s.orders.ListAll(ctx)
}
