// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tidemark/config.yaml",
	"/etc/tidemark/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:       "/data/tidemark/store",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Catalog: CatalogConfig{
			MaxUpdateAttempts: 5,
			DefaultAuthor:     "tidemark",
		},
		Routing: RoutingConfig{
			ClassificationCacheTTL: 10 * time.Minute,
			MaxClassifyAttempts:    3,
		},
		Sinks: SinksConfig{
			Backend: "memory",
			Postgres: PostgresConfig{
				MaxConns:        10,
				MinConns:        2,
				MaxConnLifetime: time.Hour,
				MaxConnIdleTime: 30 * time.Minute,
				ConnectTimeout:  5 * time.Second,
			},
			DuckDBPath: "/data/tidemark/observations.duckdb",
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Timeout:          30 * time.Second,
				MaxRequests:      3,
			},
		},
		Dispatch: DispatchConfig{
			RedispatchInterval: 30 * time.Second,
			MaxTxnAttempts:     10,
			Bus:                "memory",
		},
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			QueueGroup:       "tidemark",
			SubscribersCount: 4,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8640,
			Timeout:           30 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			IngestRate:        500,
			IngestBurst:       1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads configuration with Koanf v2 from defaults, then the optional
// config file, then environment variables, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from the
// environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps lower-cased environment variable names to config paths.
var envMappings = map[string]string{
	// Store
	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_sync_writes": "store.sync_writes",
	"store_gc_interval": "store.gc_interval",
	"store_gc_ratio":    "store.gc_ratio",

	// Catalog
	"catalog_max_update_attempts": "catalog.max_update_attempts",
	"catalog_default_author":      "catalog.default_author",

	// Routing
	"routing_classification_cache_ttl": "routing.classification_cache_ttl",
	"routing_max_classify_attempts":    "routing.max_classify_attempts",

	// Sinks
	"sink_backend":                   "sinks.backend",
	"postgres_dsn":                   "sinks.postgres.dsn",
	"postgres_max_conns":             "sinks.postgres.max_conns",
	"postgres_min_conns":             "sinks.postgres.min_conns",
	"postgres_max_conn_lifetime":     "sinks.postgres.max_conn_lifetime",
	"postgres_max_conn_idle_time":    "sinks.postgres.max_conn_idle_time",
	"postgres_connect_timeout":       "sinks.postgres.connect_timeout",
	"duckdb_path":                    "sinks.duckdb_path",
	"sink_breaker_enabled":           "sinks.breaker.enabled",
	"sink_breaker_failure_threshold": "sinks.breaker.failure_threshold",
	"sink_breaker_timeout":           "sinks.breaker.timeout",
	"sink_breaker_max_requests":      "sinks.breaker.max_requests",

	// Dispatch
	"dispatch_redispatch_interval": "dispatch.redispatch_interval",
	"dispatch_max_txn_attempts":    "dispatch.max_txn_attempts",
	"job_bus":                      "dispatch.bus",

	// NATS
	"nats_url":            "nats.url",
	"nats_max_reconnects": "nats.max_reconnects",
	"nats_reconnect_wait": "nats.reconnect_wait",
	"nats_queue_group":    "nats.queue_group",
	"nats_subscribers":    "nats.subscribers_count",

	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"environment":         "server.environment",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",
	"ingest_rate":         "server.ingest_rate",
	"ingest_burst":        "server.ingest_burst",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its config path. Unmapped
// variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
