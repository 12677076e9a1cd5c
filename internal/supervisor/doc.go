// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package supervisor runs Tidemark's long-lived components under a suture v4
supervision tree.

The tree has three layers, each its own supervisor under the root:

	tidemark
	├── data-layer       store GC, job redispatcher
	├── messaging-layer  job results consumer
	└── api-layer        HTTP server

A service that returns an error or panics is restarted by its layer with
suture's backoff; a crash in the messaging layer leaves the API serving.
Supervisor events go through sutureslog to the zerolog-backed slog logger
from internal/logging.

Services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

and fmt.Stringer so events name them. Wrappers for components that do not
have that shape live in the services subpackage.
*/
package supervisor
