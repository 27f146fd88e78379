package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/payment"
)

// ErrUnverified is returned by SyncPayment when the processor does not report
// the order's session as paid.
var ErrUnverified = errors.New("payment not confirmed by processor")

// HandleSessionCompleted reconciles a verified "session completed"
// notification: mark the order paid, clear the user's cart snapshot, and
// charge the coupon slot.
//
// Delivery is at least once, so every step is idempotent. The paid flag is a
// check-and-set; the cart clear and coupon redeem run only on the call that
// performed the transition, so a duplicate notification increments nothing.
func (s *Service) HandleSessionCompleted(ctx context.Context, meta payment.Metadata) error {
	first, err := s.orders.MarkPaid(ctx, meta.OrderID)
	if err != nil {
		return errors.Wrapf(err, "mark order %s paid", meta.OrderID)
	}
	if !first {
		zctx.From(ctx).Debug("duplicate payment notification",
			zap.String("order_id", meta.OrderID))
		return nil
	}

	if err := s.users.ClearCart(ctx, meta.UserID); err != nil {
		// The payment is already recorded; cart cleanup is best-effort.
		zctx.From(ctx).Warn("clear cart after payment",
			zap.String("user_id", meta.UserID), zap.Error(err))
	}

	if meta.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, meta.CouponCode); err != nil {
			// An exhausted coupon at confirmation time means concurrent
			// redemptions raced past the preview. The customer already paid
			// the discounted amount, so record and move on.
			zctx.From(ctx).Warn("redeem coupon after payment",
				zap.String("coupon", meta.CouponCode), zap.Error(err))
		}
	}

	o, err := s.orders.GetByID(ctx, meta.OrderID)
	if err == nil {
		s.notifier.OrderPaid(ctx, o)
	}
	return nil
}

// HandleSessionExpired removes an order whose checkout session expired before
// payment. The row is deleted outright; no coupon usage was charged for
// online orders at placement, so nothing needs reclaiming. Deleting an
// already-absent or meanwhile-paid order is a safe no-op.
func (s *Service) HandleSessionExpired(ctx context.Context, orderID string) error {
	deleted, err := s.orders.DeleteUnpaid(ctx, orderID)
	if err != nil {
		return errors.Wrapf(err, "delete expired order %s", orderID)
	}
	if deleted {
		s.notifier.OrderRemoved(ctx, orderID)
	}
	return nil
}

// SyncPayment is the operator-triggered reconciliation path: look the order's
// checkout session up directly at the processor and, if it reports paid,
// apply the same transition as the webhook.
//
// COD and already-paid orders return as-is without touching the processor.
func (s *Service) SyncPayment(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsPaid || o.PaymentMethod == PaymentCOD {
		return o, nil
	}
	if o.CheckoutSessionID == "" {
		return nil, ErrUnverified
	}

	session, err := s.processor.GetSession(ctx, o.CheckoutSessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return nil, ErrUnverified
		}
		return nil, errors.Wrap(err, "lookup checkout session")
	}
	if session.PaymentStatus != payment.StatusPaid {
		return nil, ErrUnverified
	}

	err = s.HandleSessionCompleted(ctx, payment.Metadata{
		OrderID:    o.ID,
		UserID:     o.UserID,
		CouponCode: o.CouponCode,
		Discount:   o.Discount,
	})
	if err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, orderID)
}
