package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/greencart-api/internal/domain/product"
)

// ListProducts returns the browsable catalog. Soft-deleted products are
// excluded by the repository.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("list products", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]productView, len(products))
	for i := range products {
		out[i] = h.viewProduct(&products[i])
	}
	ok(w, r, response{Products: out})
}

// GetProduct returns a single catalog item by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			fail(w, r, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("get product", zap.Error(err))
		fail(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	v := h.viewProduct(p)
	ok(w, r, response{Product: &v})
}
