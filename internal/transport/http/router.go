package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ghgquant/internal/middleware"
)

// RouterConfig carries the handlers and knobs the router mounts.
type RouterConfig struct {
	Runs    *RunHandler
	Health  *HealthHandler
	Metrics http.Handler
	Logger  *slog.Logger
	// RateLimitRPS bounds request throughput; zero disables limiting.
	RateLimitRPS   float64
	RequestTimeout time.Duration
}

// NewRouter assembles the report server routes with the standard
// middleware chain. RequestID runs first so every later stage logs with
// the request's trace id.
func NewRouter(cfg RouterConfig) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(timeout, logger))
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS)*2, logger)
		r.Use(limiter.Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.Health.HealthCheck)
		r.Get("/health/live", cfg.Health.LivenessCheck)
		r.Get("/version", cfg.Health.Version)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", cfg.Runs.Create)
			r.Get("/", cfg.Runs.List)
			r.Get("/{runID}", cfg.Runs.Get)
			r.Get("/{runID}/aggregates/{profile}", cfg.Runs.Aggregates)
		})
	})

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	return r
}
