// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package sink

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/tidemark/internal/metrics"
)

// MemorySink keeps records in memory. Used in development and tests.
type MemorySink struct {
	table Table

	mu      sync.Mutex
	records []Record
	failErr error
}

// NewMemorySink returns an empty sink for table.
func NewMemorySink(table Table) *MemorySink {
	return &MemorySink{table: table}
}

// NewMemorySet returns a set of memory sinks, one per table.
func NewMemorySet() *Set {
	sinks := make(map[Table]Sink, len(Tables))
	for _, t := range Tables {
		sinks[t] = NewMemorySink(t)
	}
	return NewSet(sinks)
}

// Name implements Sink.
func (m *MemorySink) Name() string { return "memory:" + string(m.table) }

// Write implements Sink.
func (m *MemorySink) Write(ctx context.Context, r Record) (err error) {
	start := time.Now()
	defer func() { metrics.RecordSinkWrite(m.Name(), time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRecord(m.table, r); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of everything written so far, in write order.
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// FailWith makes every later Write return err; nil restores normal writes.
func (m *MemorySink) FailWith(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}
