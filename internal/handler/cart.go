package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// SessionCookie names the cookie holding the cart session id.
const SessionCookie = "cart_session"

// store returns the cart of the requesting session, issuing a new session
// cookie when the request has none or an invalid one. The cart stays pinned
// in memory until release is called. On failure the error response is
// already written.
func (h *Handler) store(w http.ResponseWriter, r *http.Request) (_ *cart.Store, release func(), ok bool) {
	id := h.sessionID(w, r)
	s, release, err := h.sessions.Acquire(r.Context(), id)
	if err != nil {
		zctx.From(r.Context()).Error("Acquire cart", zap.String("key", cart.SessionKey(id)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cart storage unavailable")
		return nil, nil, false
	}
	return s, release, true
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// GetCart serves GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	h.writeCart(w, s)
}

// AddItem serves POST /api/cart/items with body {"productId"}.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	var (
		productID int64
		seen      bool
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "productId" {
			return d.Skip()
		}
		seen = true
		v, err := d.Int64()
		productID = v
		return err
	}); err != nil || !seen {
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	p, err := h.products.GetByID(r.Context(), productID)
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		zctx.From(r.Context()).Error("Get product", zap.Int64("product_id", productID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.AddItem(*p)
	h.mutated(r.Context(), s, "add")
	h.writeCart(w, s)
}

// UpdateQuantity serves PUT /api/cart/items/{id} with body {"quantity"}.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	var (
		quantity int
		seen     bool
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		v, err := d.Int()
		quantity = v
		return err
	}); err != nil || !seen {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	s.UpdateQuantity(id, quantity)
	h.mutated(r.Context(), s, "update_quantity")
	h.writeCart(w, s)
}

// RemoveItem serves DELETE /api/cart/items/{id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	s.RemoveItem(id)
	h.mutated(r.Context(), s, "remove")
	h.writeCart(w, s)
}

// ClearCart serves DELETE /api/cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()

	s.ClearCart()
	h.mutated(r.Context(), s, "clear")
	h.writeCart(w, s)
}

// RehydrateCart serves POST /api/cart/rehydrate, loading the persisted
// snapshot of the session into its cart.
func (h *Handler) RehydrateCart(w http.ResponseWriter, r *http.Request) {
	s, release, ok := h.store(w, r)
	if !ok {
		return
	}
	defer release()
	if err := s.Rehydrate(r.Context()); err != nil {
		zctx.From(r.Context()).Error("Rehydrate cart", zap.String("key", s.Key()), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "cart storage unavailable")
		return
	}
	h.writeCart(w, s)
}

// mutated records the mutation and persists the cart. A failed save keeps
// the in-memory cart and is only logged.
func (h *Handler) mutated(ctx context.Context, s *cart.Store, op string) {
	h.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))

	if err := s.Persist(ctx); err != nil && !errors.Is(err, cart.ErrNoRepository) {
		zctx.From(ctx).Warn("Persist cart",
			zap.String("op", op),
			zap.String("key", s.Key()),
			zap.Error(err),
		)
	}
}

// writeCart writes {"items":[...],"total":...,"hydrated":...}.
func (h *Handler) writeCart(w http.ResponseWriter, s *cart.Store) {
	v := s.View()

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		e.ArrStart()
		for _, it := range v.Items {
			e.ObjStart()
			product.EncodeFields(e, h.withImageBase(it.Product))
			e.FieldStart("quantity")
			e.Int(it.Quantity)
			e.FieldStart("lineTotal")
			product.EncodeDecimal(e, it.LineTotal())
			e.ObjEnd()
		}
		e.ArrEnd()
		e.FieldStart("total")
		product.EncodeDecimal(e, v.Total)
		e.FieldStart("hydrated")
		e.Bool(v.Hydrated)
		e.ObjEnd()
	})
}
