// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package main is the entry point for the Tidemark server.

Tidemark keeps a versioned catalog of observational metadata (people,
organizations, stations, sensors, processes) and routes incoming
observations to the sink table matching each sensor's frozen data type,
scheduling the sensor's derived-data processes as jobs.

# Application Architecture

	RootSupervisor ("tidemark")
	├── DataSupervisor ("data-layer")
	│   ├── Store GC (BadgerDB value-log compaction, optional)
	│   └── Redispatcher (republishes unpublished pending jobs)
	├── MessagingSupervisor ("messaging-layer")
	│   └── Results consumer (job outcomes from the bus)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (REST, SensorThings projection, metrics)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config file and environment
 2. Logging: zerolog with JSON or console output
 3. Revision store: BadgerDB, shared with the job ledger
 4. Catalog: versioned entities with integrity checks
 5. Sinks: memory, TimescaleDB (pgx) or DuckDB tables
 6. Job bus: Watermill on Go channels or NATS
 7. Routing engine: classification, delivery and job scheduling
 8. Supervisor tree and HTTP server

# Configuration

	Priority: Environment variables > Config file > Defaults

Common environment variables:

	HTTP_PORT=8640
	STORE_PATH=/data/tidemark/store
	STORE_IN_MEMORY=false
	SINK_BACKEND=memory          # memory, timescale, duckdb
	POSTGRES_DSN=postgres://...
	JOB_BUS=memory               # memory or nats
	NATS_URL=nats://127.0.0.1:4222
	LOG_LEVEL=info
	LOG_FORMAT=json

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
server (draining in-flight requests), the consumer and the background
services; the routing engine, bus, sinks and store are then closed in
reverse creation order.
*/
package main
