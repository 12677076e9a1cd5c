// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

var (
	validLogLevels    = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats   = []string{"json", "console"}
	validSinkBackends = []string{"memory", "timescale", "duckdb"}
	validBuses        = []string{"memory", "nats"}
	validEnvironments = []string{"development", "staging", "production"}
)

// Validate checks the whole configuration and returns every problem found.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateStore(),
		c.validateCatalog(),
		c.validateRouting(),
		c.validateSinks(),
		c.validateDispatch(),
		c.validateServer(),
		c.validateLogging(),
	)
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && c.Store.Path == "" {
		return errors.New("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	if c.Store.GCInterval < 0 {
		return errors.New("STORE_GC_INTERVAL must not be negative")
	}
	if c.Store.GCInterval > 0 && (c.Store.GCRatio <= 0 || c.Store.GCRatio >= 1) {
		return fmt.Errorf("STORE_GC_RATIO must be between 0 and 1 exclusive, got %v", c.Store.GCRatio)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.MaxUpdateAttempts < 1 {
		return errors.New("CATALOG_MAX_UPDATE_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) validateRouting() error {
	var errs []error
	if c.Routing.ClassificationCacheTTL <= 0 {
		errs = append(errs, errors.New("ROUTING_CLASSIFICATION_CACHE_TTL must be positive"))
	}
	if c.Routing.MaxClassifyAttempts < 1 {
		errs = append(errs, errors.New("ROUTING_MAX_CLASSIFY_ATTEMPTS must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateSinks() error {
	var errs []error
	switch c.Sinks.Backend {
	case "timescale":
		if c.Sinks.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when SINK_BACKEND=timescale"))
		}
		if c.Sinks.Postgres.MinConns > c.Sinks.Postgres.MaxConns {
			errs = append(errs, fmt.Errorf("POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)",
				c.Sinks.Postgres.MinConns, c.Sinks.Postgres.MaxConns))
		}
	case "duckdb":
		if c.Sinks.DuckDBPath == "" {
			errs = append(errs, errors.New("DUCKDB_PATH is required when SINK_BACKEND=duckdb"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("SINK_BACKEND must be one of: %v", validSinkBackends))
	}
	if c.Sinks.Breaker.Enabled && c.Sinks.Breaker.FailureThreshold == 0 {
		errs = append(errs, errors.New("SINK_BREAKER_FAILURE_THRESHOLD must be positive when the breaker is enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateDispatch() error {
	var errs []error
	if c.Dispatch.RedispatchInterval <= 0 {
		errs = append(errs, errors.New("DISPATCH_REDISPATCH_INTERVAL must be positive"))
	}
	if !slices.Contains(validBuses, c.Dispatch.Bus) {
		errs = append(errs, fmt.Errorf("JOB_BUS must be one of: %v", validBuses))
	}
	if c.Dispatch.Bus == "nats" {
		if err := validateNATSURL(c.NATS.URL); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateNATSURL(raw string) error {
	if raw == "" {
		return errors.New("NATS_URL is required when JOB_BUS=nats")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("NATS_URL is not a valid URL: %w", err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("NATS_URL scheme must be nats, tls, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("NATS_URL must include a host")
	}
	return nil
}

func (c *Config) validateServer() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("HTTP_PORT must be between 1 and 65535"))
	}
	if !slices.Contains(validEnvironments, c.Server.Environment) {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be one of: %v", validEnvironments))
	}
	if c.IsProduction() && slices.Contains(c.Server.CORSOrigins, "*") {
		errs = append(errs, errors.New("CORS_ORIGINS=* (wildcard) is not allowed in production; list the allowed origins"))
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must be at least 1"))
		}
		if c.Server.RateLimitWindow <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
		}
	}
	if c.Server.IngestRate <= 0 {
		errs = append(errs, errors.New("INGEST_RATE must be positive"))
	}
	if c.Server.IngestBurst < 1 {
		errs = append(errs, errors.New("INGEST_BURST must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateLogging() error {
	var errs []error
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of: %v", validLogLevels))
	}
	if c.Logging.Format != "" && !slices.Contains(validLogFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be one of: %v", validLogFormats))
	}
	return errors.Join(errs...)
}
