package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/payment"
)

// maxWebhookBody bounds the raw payload read for signature verification.
const maxWebhookBody = 1 << 20

// PaymentWebhook consumes asynchronous processor notifications. The raw body
// is verified against the shared-secret signature before anything else; a
// failed check is rejected with no state change.
//
// Delivery is at least once. The underlying transitions are idempotent, so a
// redelivered event is acknowledged without double effects.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		fail(w, r, http.StatusBadRequest, "read body")
		return
	}

	event, err := payment.ParseEvent(body, r.Header.Get("Payment-Signature"),
		h.cfg.WebhookSecret, time.Now())
	if err != nil {
		zctx.From(r.Context()).Warn("webhook rejected", zap.Error(err))
		fail(w, r, http.StatusBadRequest, "signature verification failed")
		return
	}

	lg := zctx.From(r.Context()).With(
		zap.String("event_type", event.Type),
		zap.String("order_id", event.Session.Metadata.OrderID),
	)

	switch event.Type {
	case payment.EventSessionCompleted:
		if err := h.orders.HandleSessionCompleted(r.Context(), event.Session.Metadata); err != nil {
			lg.Error("handle session completed", zap.Error(err))
			fail(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	case payment.EventSessionExpired:
		if err := h.orders.HandleSessionExpired(r.Context(), event.Session.Metadata.OrderID); err != nil {
			lg.Error("handle session expired", zap.Error(err))
			fail(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	default:
		// Unknown event types are acknowledged so the processor stops
		// retrying them.
		lg.Info("unhandled webhook event type")
	}

	ok(w, r, response{Message: "received"})
}
