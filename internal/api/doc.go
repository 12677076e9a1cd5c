// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package api is the HTTP surface of Tidemark, routed with chi.

# Endpoints

Health:

	GET  /api/v1/health/live
	GET  /api/v1/health/ready

Catalog, where {collection} is one of sensors, stations, datasets,
featuresOfInterest, processes, people, operations, deployments, projects:

	GET  /api/v1/{collection}                          latest version of every entity
	POST /api/v1/{collection}                          create
	GET  /api/v1/{collection}/{id}                     latest version
	PUT  /api/v1/{collection}/{id}                     replace the document
	GET  /api/v1/{collection}/{id}/history             every revision, oldest first
	GET  /api/v1/{collection}/{id}/versions/{version}  one revision
	GET  /api/v1/schema/{collection}                   JSON schema of the kind section
	GET  /api/v1/healthcheck                           catalog-wide reference check

Observations and jobs:

	POST /api/v1/observations                          route one observation
	POST /api/v1/trajectories                          route one trajectory fix
	GET  /api/v1/jobs/pending
	GET  /api/v1/jobs/{sensor}/{process}/{window}
	POST /api/v1/jobs/{sensor}/{process}/{window}/requeue
	POST /api/v1/jobs/results                          record a worker result

SensorThings projections (raw STA JSON, optional ?version=N):

	GET  /sta/v1.1/Sensors/{id}
	GET  /sta/v1.1/Sensors/{id}/Datastreams
	GET  /sta/v1.1/Things/{id}
	GET  /sta/v1.1/FeaturesOfInterest/{id}

Prometheus metrics are served at /metrics.

# Responses

Everything under /api/v1 uses the envelope

	{"success": true, "data": ..., "meta": {"request_id": ..., "timestamp": ...}}
	{"success": false, "error": {"code": ..., "message": ..., "details": ...}, "meta": ...}

Domain errors map to statuses in writeDomainError: not found 404,
duplicates, conflicts, immutable fields and unchanged updates 409, integrity
and unknown sensors 422, sink failures 502, malformed input 400.
*/
package api
