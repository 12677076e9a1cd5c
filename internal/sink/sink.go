// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package sink holds the storage backends that routed observations land in.
//
// A Sink accepts one Record at a time and either acknowledges it (nil error)
// or fails. Sinks do not retry: callers decide, because idempotency differs
// per backend.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Table names one destination table.
type Table string

const (
	TableTimeseries   Table = "timeseries"
	TableProfiles     Table = "profiles"
	TableDetections   Table = "detections"
	TableObservations Table = "observations"
)

// Tables lists every table a backend serves.
var Tables = []Table{TableTimeseries, TableProfiles, TableDetections, TableObservations}

// Record is one observation ready to store. Depth is required by profiles;
// Params is stored only by the generic observations table.
type Record struct {
	SensorID      string
	ObservationID string
	Timestamp     time.Time
	Value         float64
	Depth         *float64
	QCFlag        *int
	Params        map[string]any
}

// Sink stores records in one table.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Name() string
}

// ErrMissingDepth is returned when a profile record has no depth.
var ErrMissingDepth = errors.New("profile record requires a depth")

// Set is the group of sinks of one backend, one per table.
type Set struct {
	sinks   map[Table]Sink
	closers []func() error
}

// NewSet builds a set from explicit sinks. closers run on Close in order.
func NewSet(sinks map[Table]Sink, closers ...func() error) *Set {
	return &Set{sinks: sinks, closers: closers}
}

// Sink returns the sink for a table.
func (s *Set) Sink(t Table) (Sink, bool) {
	sk, ok := s.sinks[t]
	return sk, ok
}

// Wrap replaces every sink with wrap(sink).
func (s *Set) Wrap(wrap func(Table, Sink) Sink) {
	for t, sk := range s.sinks {
		s.sinks[t] = wrap(t, sk)
	}
}

// Close releases backend resources.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkRecord(t Table, r Record) error {
	if r.SensorID == "" {
		return fmt.Errorf("%s record %s: empty sensor id", t, r.ObservationID)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%s record %s: zero timestamp", t, r.ObservationID)
	}
	if t == TableProfiles && r.Depth == nil {
		return fmt.Errorf("%s record %s: %w", t, r.ObservationID, ErrMissingDepth)
	}
	return nil
}
