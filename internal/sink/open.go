// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/tidemark/internal/logging"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory    = "memory"
	BackendTimescale = "timescale"
	BackendDuckDB    = "duckdb"
)

// PostgresConfig configures the TimescaleDB connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Config selects and configures a sink backend.
type Config struct {
	Backend    string
	Postgres   PostgresConfig
	DuckDBPath string
	Breaker    BreakerConfig
}

// DefaultConfig returns an in-memory backend with breakers enabled.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Postgres: PostgresConfig{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		DuckDBPath: "/data/tidemark/observations.duckdb",
		Breaker:    DefaultBreakerConfig(),
	}
}

// Open builds the sink set of the configured backend, running migrations for
// SQL backends. Every sink is wrapped in a circuit breaker when enabled.
func Open(ctx context.Context, cfg Config) (*Set, error) {
	var (
		set *Set
		err error
	)
	switch cfg.Backend {
	case BackendMemory, "":
		set = NewMemorySet()
	case BackendTimescale:
		set, err = openTimescale(ctx, cfg.Postgres)
	case BackendDuckDB:
		set, err = openDuckDB(ctx, cfg.DuckDBPath)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Breaker.Enabled {
		set.Wrap(func(_ Table, s Sink) Sink { return NewBreakerSink(s, cfg.Breaker) })
	}
	logging.Info().Str("backend", cfg.Backend).Bool("breaker", cfg.Breaker.Enabled).Msg("Sinks ready")
	return set, nil
}

func openTimescale(ctx context.Context, cfg PostgresConfig) (*Set, error) {
	if cfg.DSN == "" {
		return nil, errors.New("timescale backend requires a postgres dsn")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	if err := Migrate(connectCtx, db, Timescale); err != nil {
		_ = db.Close()
		pool.Close()
		return nil, err
	}

	logging.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Msg("Connected to TimescaleDB")

	return NewSQLSet(db, Timescale, db.Close, func() error { pool.Close(); return nil }), nil
}

func openDuckDB(ctx context.Context, path string) (*Set, error) {
	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	// DuckDB allows one writer per process.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db, DuckDB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLSet(db, DuckDB, db.Close), nil
}
