// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tidemark/internal/middleware"
)

// RouterConfig configures the middleware chain.
type RouterConfig struct {
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP on /api/v1.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// IngestRate is the sustained observations per second accepted across
	// all clients; IngestBurst the bucket size. Zero disables the limit.
	IngestRate  float64
	IngestBurst int
}

// DefaultRouterConfig returns the configuration used by tests and
// development servers.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORSOrigins:       []string{"*"},
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		IngestRate:        500,
		IngestBurst:       1000,
	}
}

// NewRouter wires every endpoint.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{"ETag", "Location", middleware.RequestIDHeader},
		MaxAge:         86400,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("no route for " + r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, r.Method+" not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		r.Get("/health/live", h.HealthLive)
		r.Get("/health/ready", h.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(cfg))

			r.Get("/healthcheck", h.CatalogHealthcheck)
			r.Get("/schema/{collection}", h.KindSchema)

			r.Group(func(r chi.Router) {
				r.Use(ingestLimit(cfg))
				r.Post("/observations", h.RouteObservation)
				r.Post("/trajectories", h.RouteTrajectory)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/pending", h.PendingJobs)
				r.Post("/results", h.CompleteJob)
				r.Get("/{sensor}/{process}/{window}", h.GetJob)
				r.Post("/{sensor}/{process}/{window}/requeue", h.RequeueJob)
			})

			r.Route("/{collection}", func(r chi.Router) {
				r.Get("/", h.ListEntities)
				r.Post("/", h.CreateEntity)
				r.Get("/{id}", h.GetEntity)
				r.Put("/{id}", h.ReplaceEntity)
				r.Get("/{id}/history", h.EntityHistory)
				r.Get("/{id}/versions/{version}", h.GetEntityVersion)
			})
		})
	})

	r.Route("/sta/v1.1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(rateLimit(cfg))
		r.Get("/Sensors/{id}", h.STASensor)
		r.Get("/Sensors/{id}/Datastreams", h.STADatastreams)
		r.Get("/Things/{id}", h.STAThing)
		r.Get("/FeaturesOfInterest/{id}", h.STAFeatureOfInterest)
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func rateLimit(cfg RouterConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitDisabled || cfg.RateLimitRequests <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		cfg.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// ingestLimit caps the ingest rate across all clients so a burst from many
// addresses cannot overrun the sinks.
func ingestLimit(cfg RouterConfig) func(http.Handler) http.Handler {
	if cfg.IngestRate <= 0 {
		return passthrough
	}
	burst := max(cfg.IngestBurst, 1)
	limiter := rate.NewLimiter(rate.Limit(cfg.IngestRate), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				tooManyRequests(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Error(http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded")
}

func passthrough(next http.Handler) http.Handler { return next }
