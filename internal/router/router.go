package router

import (
	"snackstore-api/internal/handler"
	"snackstore-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler      *handler.Handler
	CartHandler  *handler.CartHandler
	StockHandler *handler.StockHandler
	StockChannel *handler.StockChannelHandler
	AdminHandler *handler.AdminHandler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Identity)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Cart-Session", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Cart-Session"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	r.Handle("/metrics", promhttp.Handler())

	// Stock notification channel: one long-lived connection per client.
	if cfg.StockChannel != nil {
		r.Get("/ws/stock", cfg.StockChannel.Serve)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.CartHandler != nil {
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.CartHandler.GetCart)
				r.Delete("/", cfg.CartHandler.ClearCart)
				r.Post("/items", cfg.CartHandler.AddToCart)
				r.Put("/items/{productID}", cfg.CartHandler.UpdateCartItem)
				r.Delete("/items/{productID}", cfg.CartHandler.RemoveCartItem)
			})
		}

		if cfg.StockHandler != nil {
			r.Get("/products/{productID}/stock", cfg.StockHandler.GetStock)
		}

		// Internal endpoints for trusted collaborators (checkout, admin
		// tooling); expected to be fenced off by the gateway.
		r.Route("/internal", func(r chi.Router) {
			if cfg.StockHandler != nil {
				r.Post("/products/{productID}/notify", cfg.StockHandler.NotifyProductChanged)
			}
			if cfg.AdminHandler != nil {
				r.Post("/cleanup/run", cfg.AdminHandler.RunCleanup)
			}
		})
	})

	return r
}
