// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package config loads Tidemark configuration.

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: CONFIG_PATH, or config.yaml / config.yml in the
    working directory, or /etc/tidemark/config.yaml
 3. Environment variables listed in envMappings

Unknown environment variables are ignored.

# Sections

  - store: revision store (STORE_PATH, STORE_IN_MEMORY, STORE_SYNC_WRITES,
    STORE_GC_INTERVAL, STORE_GC_RATIO)
  - catalog: update retries and default author (CATALOG_MAX_UPDATE_ATTEMPTS,
    CATALOG_DEFAULT_AUTHOR)
  - routing: classification cache (ROUTING_CLASSIFICATION_CACHE_TTL)
  - sinks: observation storage backend, memory, timescale or duckdb
    (SINK_BACKEND, POSTGRES_DSN, DUCKDB_PATH, SINK_BREAKER_*)
  - dispatch: job ledger and bus (DISPATCH_REDISPATCH_INTERVAL, JOB_BUS)
  - nats: NATS connection when JOB_BUS=nats (NATS_URL, NATS_QUEUE_GROUP)
  - server: HTTP API (HTTP_HOST, HTTP_PORT, CORS_ORIGINS, RATE_LIMIT_*,
    INGEST_RATE, INGEST_BURST)
  - logging: LOG_LEVEL, LOG_FORMAT, LOG_CALLER

Example YAML:

	store:
	  path: /var/lib/tidemark/store
	sinks:
	  backend: timescale
	  postgres:
	    dsn: postgres://tidemark@db:5432/observations
	dispatch:
	  bus: nats
	nats:
	  url: nats://nats:4222

Validate reports every problem at once, joined with errors.Join.
*/
package config
