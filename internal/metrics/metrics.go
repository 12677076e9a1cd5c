// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package metrics holds the Prometheus collectors for the catalog, routing
// and dispatch paths. Collectors are registered on the default registry via
// promauto and exposed by the API at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Revision Store
	RevisionAppends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_revision_appends_total",
			Help: "Total number of revisions appended",
		},
		[]string{"kind"},
	)

	RevisionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_revision_conflicts_total",
			Help: "Appends rejected because the expected version was stale",
		},
		[]string{"kind"},
	)

	RevisionAppendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tidemark_revision_append_duration_seconds",
			Help:    "Duration of revision store append transactions",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	// Entity Catalog
	CatalogOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_catalog_operations_total",
			Help: "Catalog write operations by outcome",
		},
		[]string{"operation", "kind", "result"},
	)

	CatalogUpdateRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_catalog_update_retries_total",
			Help: "Update attempts retried after a version conflict",
		},
		[]string{"kind"},
	)

	// Routing Engine
	ObservationsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_observations_total",
			Help: "Observations by sink target and terminal state",
		},
		[]string{"target", "state"},
	)

	RoutingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidemark_routing_duration_seconds",
			Help:    "Time from receipt to terminal state",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"target"},
	)

	ClassificationCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidemark_classification_cache_hits_total",
			Help: "Sensor classifications served from cache",
		},
	)

	ClassificationCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidemark_classification_cache_misses_total",
			Help: "Sensor classifications resolved through the catalog",
		},
	)

	// Sinks
	SinkWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidemark_sink_write_duration_seconds",
			Help:    "Duration of sink writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	SinkWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_sink_write_errors_total",
			Help: "Failed sink writes",
		},
		[]string{"sink"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tidemark_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Process Dispatcher
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_jobs_enqueued_total",
			Help: "Derived-data jobs enqueued",
		},
		[]string{"process_kind"},
	)

	JobsDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_jobs_deduplicated_total",
			Help: "Enqueue requests that matched an existing job key",
		},
		[]string{"process_kind"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_jobs_completed_total",
			Help: "Job outcomes recorded",
		},
		[]string{"state"},
	)

	JobPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tidemark_job_publish_failures_total",
			Help: "Job messages that could not be published to the bus",
		},
	)

	JobsPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tidemark_jobs_pending",
			Help: "Jobs waiting for a worker result at the last redispatch pass",
		},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidemark_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidemark_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)
)

// RecordAppend records one append attempt.
func RecordAppend(kind string, duration time.Duration, conflict bool) {
	RevisionAppendDuration.Observe(duration.Seconds())
	if conflict {
		RevisionConflicts.WithLabelValues(kind).Inc()
		return
	}
	RevisionAppends.WithLabelValues(kind).Inc()
}

// RecordCatalogOperation records a create or update outcome.
func RecordCatalogOperation(operation, kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	CatalogOperations.WithLabelValues(operation, kind, result).Inc()
}

// RecordRouting records the terminal state of one observation.
func RecordRouting(target, state string, duration time.Duration) {
	if target == "" {
		target = "none"
	}
	ObservationsRouted.WithLabelValues(target, state).Inc()
	RoutingDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// RecordSinkWrite records one sink write.
func RecordSinkWrite(sink string, duration time.Duration, err error) {
	SinkWriteDuration.WithLabelValues(sink).Observe(duration.Seconds())
	if err != nil {
		SinkWriteErrors.WithLabelValues(sink).Inc()
	}
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
