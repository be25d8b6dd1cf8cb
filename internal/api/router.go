package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/courierhq/courier/internal/api/middleware"
	"github.com/courierhq/courier/internal/handlers"
	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/internal/messaging"
	"github.com/courierhq/courier/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	// Worst-case JSON escaping doubles a max-length message on the wire
	// (50000 bytes of quotes encode as 100000), plus the envelope.
	r.Use(middleware.MaxBodySize(128 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Wire services and handlers
	agents := identity.NewService(db)
	svc := messaging.NewService(db, agents, logger)
	h := handlers.NewHandler(db, agents, svc, logger)
	auth := middleware.NewAuthMiddleware(agents)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/api/agents/register", h.Register)
	r.Get("/api/agents/{name}", h.GetAgent)

	// Authenticated routes (require API key)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/api/messages/send", h.SendMessage)
		r.Get("/api/messages/thread/{thread_id}", h.GetThreadHistory)
		r.Get("/api/threads", h.ListThreads)
	})

	return r
}
