package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/handlers"
	"github.com/clawhub-core/clawhub/internal/livechat"
	"github.com/clawhub-core/clawhub/internal/store"
)

// Config carries the router's dependencies. Redis is optional; without it
// rate limiting and IP blocking are disabled.
type Config struct {
	Logger          zerolog.Logger
	Store           store.DataStore
	Redis           *store.RedisStore
	Bus             *livechat.Bus
	RateLimit       middleware.RateLimiterConfig
	StreamHeartbeat time.Duration
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	var client *redis.Client
	if cfg.Redis != nil {
		client = cfg.Redis.Client()
	}
	limiter := middleware.NewRateLimiter(client, cfg.Logger, cfg.RateLimit)
	r.Use(limiter.Middleware)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg.Store, cfg.Redis, cfg.Bus, cfg.Logger, cfg.StreamHeartbeat)
	auth := middleware.NewAuthMiddleware(cfg.Store)

	r.NotFound(notFound)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/api", h.Root)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/agents/register", h.Register)
		r.Get("/skills", h.ListSkills)
		r.Get("/stats", h.PlatformStats)

		r.Route("/livechat/observe", func(r chi.Router) {
			r.Get("/messages", h.ObserveMessages)
			r.Get("/stats", h.ObserveStats)
			r.Get("/channels", h.ObserveChannels)
			r.Get("/stream", h.ObserveStream)
		})

		// Authenticated routes (require API key)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/agents/me", h.Me)
			r.Post("/skills", h.PublishSkill)

			r.Route("/livechat", func(r chi.Router) {
				r.Post("/join", h.Join)
				r.Post("/send", h.Send)
				r.Get("/messages", h.Messages)
				r.Get("/channels", h.Channels)
				r.Get("/channels/detailed", h.ChannelsDetailed)
				r.Get("/channels/{id}/stats", h.ChannelStats)
				r.Get("/stats", h.LiveChatStats)
				r.Get("/enhanced-stats", h.EnhancedStats)
				r.Get("/projects", h.Projects)
				r.Get("/collaborations", h.Collaborations)
				r.Get("/agents", h.Agents)
				r.Get("/stream", h.Stream)
				r.Get("/ws", h.Socket)
			})
		})

		r.Get("/agents/{username}", h.Who)
	})

	return r
}

// notFound is a JSON 404 for unknown routes.
func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"not found"}`))
}
