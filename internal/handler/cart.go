package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/user"
)

type updateCartRequest struct {
	CartItems map[string]int `json:"cartItems"`
}

// UpdateCart replaces the user's denormalized cart snapshot. The snapshot is
// display state only; checkout never trusts it for pricing.
func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := UserIDFromContext(r.Context())
	if err := h.users.UpdateCart(r.Context(), userID, user.Cart(req.CartItems)); err != nil {
		zctx.From(r.Context()).Error("update cart",
			zap.String("user_id", userID), zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	ok(w, r, response{Message: "cart updated"})
}
