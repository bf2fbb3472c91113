// Package handler serves the storefront HTTP API: catalog, per-session cart
// and login.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

// Handler serves the API routes.
type Handler struct {
	products product.Repository
	sessions *cart.Sessions
	login    *auth.Login

	imageBaseURL string
	secureCookie bool

	cartMutations metric.Int64Counter
	loginAttempts metric.Int64Counter
}

// New constructs a Handler and registers its instruments on meter.
func New(
	cfg Config,
	products product.Repository,
	sessions *cart.Sessions,
	login *auth.Login,
	meter metric.Meter,
) (*Handler, error) {
	cartMutations, err := meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cart mutations counter")
	}
	loginAttempts, err := meter.Int64Counter("storefront.login.attempts",
		metric.WithDescription("Login attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create login attempts counter")
	}

	return &Handler{
		products:      products,
		sessions:      sessions,
		login:         login,
		imageBaseURL:  cfg.ImageBaseURL,
		secureCookie:  cfg.SecureCookie,
		cartMutations: cartMutations,
		loginAttempts: loginAttempts,
	}, nil
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.UpdateQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.RemoveItem)
	mux.HandleFunc("POST /api/cart/rehydrate", h.RehydrateCart)

	mux.HandleFunc("POST /api/login", h.Login)
}
