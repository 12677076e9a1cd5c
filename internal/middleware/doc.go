// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package middleware provides the HTTP middleware shared by the API router.

All middleware has the chi shape func(http.Handler) http.Handler:

  - RequestID: reuses or generates X-Request-ID and seeds the logging
    context with request and correlation ids
  - PrometheusMetrics: request counts and latency labelled by the chi route
    pattern, so path parameters do not explode label cardinality
  - Compression: chi's Compress restricted to JSON and text responses

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.Compression)
*/
package middleware
