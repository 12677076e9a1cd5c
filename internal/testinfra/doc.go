// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package testinfra starts the external services integration tests run
// against, using testcontainers-go.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/sink/...
//	go test -tags "integration,nats" ./internal/eventprocessor/...
//
// # TimescaleDB
//
//	ts, err := testinfra.NewTimescaleContainer(ctx, t)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	cfg := sink.DefaultConfig()
//	cfg.Backend = sink.BackendTimescale
//	cfg.Postgres.DSN = ts.DSN
//
// # NATS
//
// NewNATSContainer runs a plain NATS server; the job bus uses core NATS
// with queue groups, so JetStream is not enabled.
//
// Tests are skipped when Docker is unavailable. The first run pulls the
// images.
package testinfra
