// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package revision

import (
	"errors"
	"time"
)

// Config configures the BadgerDB-backed store.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and ephemeral runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// HistoryPageSize bounds how many revisions one read transaction loads
	// while iterating a lineage.
	HistoryPageSize int

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "/data/tidemark/store",
		SyncWrites:      true,
		HistoryPageSize: 128,
		CloseTimeout:    30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("store path is required unless in_memory is set")
	}
	if c.HistoryPageSize < 1 {
		return errors.New("history page size must be at least 1")
	}
	if c.CloseTimeout < 0 {
		return errors.New("close timeout must not be negative")
	}
	return nil
}
