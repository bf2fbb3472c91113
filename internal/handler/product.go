package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts serves GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				product.Encode(e, h.withImageBase(p))
			}
		})
	})
}

// GetProduct serves GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	p, err := h.products.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		zctx.From(r.Context()).Error("Get product", zap.Int64("product_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		product.Encode(e, h.withImageBase(*p))
	})
}

// withImageBase prefixes relative image paths with the configured base URL.
func (h *Handler) withImageBase(p product.Product) product.Product {
	if h.imageBaseURL == "" {
		return p
	}
	prefix := func(path string) string {
		if path == "" || strings.Contains(path, "://") {
			return path
		}
		return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	p.Image = product.Image{
		Thumbnail: prefix(p.Image.Thumbnail),
		Mobile:    prefix(p.Image.Mobile),
		Tablet:    prefix(p.Image.Tablet),
		Desktop:   prefix(p.Image.Desktop),
	}
	return p
}
