package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/api/middleware"
	"github.com/loomworks/loom/internal/handlers"
	"github.com/loomworks/loom/internal/hub"
	"github.com/loomworks/loom/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be
// nil, which disables rate limiting.
func NewRouter(logger zerolog.Logger, st store.DataStore, redisStore *store.RedisStore, broadcastHub *hub.Hub, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore, logger)
	r.Use(limiter.Middleware)

	// CORS for the dashboard
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(st, redisStore)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)

	// Live channel
	wsServer := hub.NewServer(broadcastHub, logger)
	r.Get("/ws", wsServer.Serve)

	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", h.ListAgents)
		r.Post("/agents", h.CreateAgent)
		r.Get("/agents/{id}", h.GetAgent)

		r.Get("/memories", h.ListMemories)
		r.Get("/messages", h.ListMessages)

		r.Get("/collaborations", h.ListCollaborations)
		r.Post("/collaborations", h.CreateCollaboration)
		r.Get("/collaborations/{id}/participants", h.ListParticipants)
		r.Get("/collaborations/{id}/messages", h.ListCollaborationMessages)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
