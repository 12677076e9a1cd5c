// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package api

import (
	"context"
	"iter"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tidemark/internal/catalog"
	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/routing"
)

// CatalogService is the catalog as seen by the API. *catalog.Catalog
// implements it.
type CatalogService interface {
	Create(ctx context.Context, kind models.Kind, id string, doc *models.Document, author string) (*models.Entity, error)
	Replace(ctx context.Context, kind models.Kind, id string, doc *models.Document, author string) (*models.Entity, error)
	Get(ctx context.Context, kind models.Kind, id string, version int64) (*models.Entity, error)
	HistoryAfter(ctx context.Context, kind models.Kind, id string, after int64) iter.Seq2[*models.Revision, error]
	List(ctx context.Context, kind models.Kind) iter.Seq2[*models.Entity, error]
	Healthcheck(ctx context.Context) (*catalog.HealthReport, error)
}

// ObservationRouter routes observations. *routing.Engine implements it.
type ObservationRouter interface {
	Route(ctx context.Context, obs routing.Observation) (*routing.Receipt, error)
}

// JobService exposes the job ledger. *dispatch.Dispatcher implements it.
type JobService interface {
	Job(ctx context.Context, key dispatch.Key) (*dispatch.Job, error)
	Pending(ctx context.Context) ([]*dispatch.Job, error)
	Requeue(ctx context.Context, key dispatch.Key) (*dispatch.Job, error)
	Complete(ctx context.Context, res dispatch.JobResult) (*dispatch.Job, error)
}

// ReadinessCheck returns nil when a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler holds the dependencies of every endpoint.
type Handler struct {
	catalog   CatalogService
	router    ObservationRouter
	jobs      JobService
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// NewHandler creates a handler.
func NewHandler(cat CatalogService, router ObservationRouter, jobs JobService) *Handler {
	return &Handler{
		catalog:   cat,
		router:    router,
		jobs:      jobs,
		startTime: time.Now(),
		checks:    make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /health/ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady runs every readiness check and answers 503 if any fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	components := make(map[string]string, len(names))
	for _, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()
		if err := check(ctx); err != nil {
			ready = false
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "not ready", components)
		return
	}
	rw.Success(map[string]any{
		"ready":      true,
		"components": components,
		"uptime":     time.Since(h.startTime).Seconds(),
	})
}
