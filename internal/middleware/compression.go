// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package middleware

import (
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// compressionLevel is the gzip level for API responses.
const compressionLevel = 5

// Compression gzips JSON and plain-text responses for clients that accept
// it. Other content types pass through untouched.
var Compression = chimiddleware.Compress(compressionLevel,
	"application/json",
	"text/plain",
)
