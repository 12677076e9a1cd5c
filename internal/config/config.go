// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Store    StoreConfig    `koanf:"store"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Routing  RoutingConfig  `koanf:"routing"`
	Sinks    SinksConfig    `koanf:"sinks"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	NATS     NATSConfig     `koanf:"nats"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// StoreConfig configures the BadgerDB revision store. The job ledger lives
// in the same database.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`

	// GCInterval is how often value-log garbage collection runs. Zero
	// disables it. GCRatio is the discardable share that makes a file
	// eligible for rewrite.
	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio"`
}

// CatalogConfig tunes catalog updates.
type CatalogConfig struct {
	MaxUpdateAttempts int    `koanf:"max_update_attempts"`
	DefaultAuthor     string `koanf:"default_author"`
}

// RoutingConfig tunes the routing engine.
type RoutingConfig struct {
	ClassificationCacheTTL time.Duration `koanf:"classification_cache_ttl"`
	MaxClassifyAttempts    int           `koanf:"max_classify_attempts"`
}

// PostgresConfig configures the TimescaleDB pool.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// BreakerConfig configures the circuit breaker in front of each sink.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	Timeout          time.Duration `koanf:"timeout"`
	MaxRequests      uint32        `koanf:"max_requests"`
}

// SinksConfig selects where observations are written.
type SinksConfig struct {
	// Backend is memory, timescale or duckdb.
	Backend    string         `koanf:"backend"`
	Postgres   PostgresConfig `koanf:"postgres"`
	DuckDBPath string         `koanf:"duckdb_path"`
	Breaker    BreakerConfig  `koanf:"breaker"`
}

// DispatchConfig configures the process dispatcher and its job bus.
type DispatchConfig struct {
	RedispatchInterval time.Duration `koanf:"redispatch_interval"`
	MaxTxnAttempts     int           `koanf:"max_txn_attempts"`
	// Bus is memory or nats.
	Bus string `koanf:"bus"`
}

// NATSConfig configures the NATS job bus.
type NATSConfig struct {
	URL              string        `koanf:"url"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
	// Environment is development, staging or production.
	Environment string   `koanf:"environment"`
	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// IngestRate is the sustained observations per second accepted by the
	// ingest endpoint; IngestBurst is the token bucket size.
	IngestRate  float64 `koanf:"ingest_rate"`
	IngestBurst int     `koanf:"ingest_burst"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Addr returns the HTTP listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
