// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// DefaultTimescaleImage carries the timescaledb extension the sink
	// migrations enable.
	DefaultTimescaleImage = "timescale/timescaledb:latest-pg16"

	timescaleDatabase = "tidemark"
	timescaleUser     = "tidemark"
	timescalePassword = "tidemark"
)

// TimescaleContainer is a running TimescaleDB instance.
type TimescaleContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// NewTimescaleContainer starts TimescaleDB and waits until it accepts
// connections. The container is terminated when t finishes.
func NewTimescaleContainer(ctx context.Context, t *testing.T) (*TimescaleContainer, error) {
	t.Helper()
	SkipIfNoDocker(t)

	pg, err := postgres.Run(ctx, DefaultTimescaleImage,
		postgres.WithDatabase(timescaleDatabase),
		postgres.WithUsername(timescaleUser),
		postgres.WithPassword(timescalePassword),
		postgres.BasicWaitStrategies(),
	)
	if pg != nil {
		CleanupContainer(t, pg)
	}
	if err != nil {
		return nil, fmt.Errorf("start timescale container: %w", err)
	}

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("timescale connection string: %w", err)
	}
	return &TimescaleContainer{PostgresContainer: pg, DSN: dsn}, nil
}
