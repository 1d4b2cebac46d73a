/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:       Request logging
  2. Recoverer:    Panic recovery (500 instead of crash)
  3. RequestID:    Unique ID per request for tracing
  4. CORS:         Cross-origin requests for frontend
  5. RequireActor: Resolves X-Actor-ID into a user (under /api)
  6. RateLimiter:  Per-actor token bucket (under /api)

ROUTE GROUPS:
  /api/products/*       Product catalog and purchases
  /api/users/*          User management and balances (some admin only)
  /api/profile          Self-service profile editing
  /api/admin/*          Notification feed and bulk grants (admin only)
  /metrics              Prometheus scrape endpoint (no actor required)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Actor resolution and rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured. The metrics
// handler is optional; pass nil to skip the /metrics endpoint.
func NewRouter(h *Handler, limiter *RateLimiter, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.RequireActor)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		// Product routes
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/{productID}", h.GetProduct)
			r.Post("/{productID}/buy", h.Buy)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", h.CreateProduct)
				r.Put("/{productID}", h.UpdateProduct)
				r.Delete("/{productID}", h.DeleteProduct)
			})
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/{userID}/balance", h.GetBalance)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
				r.Post("/{userID}/toggle", h.ToggleUser)
			})
		})

		// Self-service profile
		r.Put("/profile", h.UpdateProfile)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/notifications", h.ListNotifications)
			r.Post("/grants", h.DispatchBulkGrant)
		})
	})

	return r
}
