package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/go_cart/storefront/internal/catalog"
)

type RouterConfig struct {
	Sessions       *Sessions
	Catalog        *catalog.Store
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	cartHandler := NewCartHandler(cfg.RequestTimeout)
	authHandler := NewAuthHandler(cfg.Sessions, cfg.RequestTimeout)
	catalogHandler := NewCatalogHandler(cfg.Catalog, cfg.RequestTimeout)
	wishlistHandler := NewWishlistHandler(cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog/categories", catalogHandler.GetCategories)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Sessions.Device)
			r.Use(cfg.Sessions.Reconcile)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Get("/count", cartHandler.GetCount)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items", cartHandler.UpdateItem)
				r.Delete("/items", cartHandler.RemoveItem)
				r.Post("/open", cartHandler.Open)
				r.Post("/close", cartHandler.Close)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Get("/session", authHandler.Session)
				r.Get("/me", authHandler.Me)
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/logout", authHandler.Logout)
				r.Post("/refresh", authHandler.Refresh)
				r.Post("/{channel}/start", authHandler.StartOTP)
				r.Post("/{channel}/verify", authHandler.VerifyOTP)
			})

			r.Route("/wishlist", func(r chi.Router) {
				r.Get("/", wishlistHandler.GetWishlist)
				r.Post("/toggle", wishlistHandler.Toggle)
			})
		})
	})

	return r
}
