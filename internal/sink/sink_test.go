// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package sink

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gobreaker "github.com/sony/gobreaker/v2"
)

var testTime = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newMock(t *testing.T) (*SQLSink, sqlmock.Sqlmock, func(Table) *SQLSink) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	mk := func(table Table) *SQLSink { return NewSQLSink(db, Timescale, table) }
	return mk(TableTimeseries), mock, mk
}

func TestSQLSinkInserts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table Table
		rec   Record
		query string
		args  []any
	}{
		{
			name:  "timeseries without depth",
			table: TableTimeseries,
			rec:   Record{SensorID: "ctd01", ObservationID: "o1", Timestamp: testTime, Value: 13.2, QCFlag: ptr(1)},
			query: `INSERT INTO timeseries ("timestamp", sensor_id, value, qc_flag) VALUES ($1, $2, $3, $4)`,
			args:  []any{testTime, "ctd01", 13.2, int64(1)},
		},
		{
			name:  "profile carries depth",
			table: TableProfiles,
			rec:   Record{SensorID: "adcp", ObservationID: "o2", Timestamp: testTime, Value: 0.4, Depth: ptr(12.5)},
			query: `INSERT INTO profiles ("timestamp", sensor_id, depth, value, qc_flag) VALUES ($1, $2, $3, $4, $5)`,
			args:  []any{testTime, "adcp", 12.5, 0.4, nil},
		},
		{
			name:  "detections store counts",
			table: TableDetections,
			rec:   Record{SensorID: "cam", ObservationID: "o3", Timestamp: testTime, Value: 7},
			query: `INSERT INTO detections ("timestamp", sensor_id, value) VALUES ($1, $2, $3)`,
			args:  []any{testTime, "cam", int64(7)},
		},
		{
			name:  "generic observation as json",
			table: TableObservations,
			rec: Record{
				SensorID: "cam", ObservationID: "o4", Timestamp: testTime, Value: 0.93,
				Params: map[string]any{"species": "Diplodus", "box": "12,40"},
			},
			query: `INSERT INTO observations (id, "timestamp", sensor_id, result, parameters) VALUES ($1, $2, $3, $4::JSONB, $5::JSONB)`,
			args:  []any{"o4", testTime, "cam", `{"value":0.93}`, `{"box":"12,40","species":"Diplodus"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, mock, mk := newMock(t)
			mock.ExpectExec(tt.query).WithArgs(toDriver(tt.args)...).WillReturnResult(sqlmock.NewResult(0, 1))

			if err := mk(tt.table).Write(context.Background(), tt.rec); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func toDriver(args []any) []driver.Value {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func TestSQLSinkRejectsBadRecords(t *testing.T) {
	t.Parallel()

	_, mock, mk := newMock(t)

	tests := []struct {
		name  string
		table Table
		rec   Record
		want  string
	}{
		{"profile without depth", TableProfiles, Record{SensorID: "adcp", Timestamp: testTime}, "depth"},
		{"fractional detection", TableDetections, Record{SensorID: "cam", Timestamp: testTime, Value: 1.5}, "not a count"},
		{"missing sensor", TableTimeseries, Record{Timestamp: testTime}, "sensor id"},
		{"missing timestamp", TableTimeseries, Record{SensorID: "ctd01"}, "timestamp"},
	}
	for _, tt := range tests {
		err := mk(tt.table).Write(context.Background(), tt.rec)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error = %v, want mention of %q", tt.name, err, tt.want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no statement should have run: %v", err)
	}
}

func TestSQLSinkSurfacesDatabaseErrors(t *testing.T) {
	t.Parallel()

	s, mock, _ := newMock(t)
	mock.ExpectExec(`INSERT INTO timeseries ("timestamp", sensor_id, value, qc_flag) VALUES ($1, $2, $3, $4)`).
		WillReturnError(errors.New("connection reset"))

	err := s.Write(context.Background(), Record{SensorID: "ctd01", Timestamp: testTime, Value: 1})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("Write error = %v", err)
	}
}

func TestMigrateTimescaleCreatesHypertables(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	stmts := schemaStatements(Timescale)
	for range stmts {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	if err := Migrate(context.Background(), db, Timescale); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}

	var hyper int
	for _, s := range stmts {
		if strings.Contains(s, "create_hypertable") {
			hyper++
		}
	}
	if hyper != 3 {
		t.Errorf("hypertables = %d, want 3", hyper)
	}
	for _, s := range schemaStatements(DuckDB) {
		if strings.Contains(s, "create_hypertable") || strings.Contains(s, "timescaledb") {
			t.Errorf("duckdb schema uses timescale: %s", s)
		}
	}
}

func TestMemorySink(t *testing.T) {
	t.Parallel()

	set := NewMemorySet()
	s, ok := set.Sink(TableProfiles)
	if !ok {
		t.Fatal("memory set has no profiles sink")
	}
	mem := s.(*MemorySink)

	if err := mem.Write(context.Background(), Record{SensorID: "adcp", Timestamp: testTime}); !errors.Is(err, ErrMissingDepth) {
		t.Errorf("missing depth error = %v", err)
	}
	if err := mem.Write(context.Background(), Record{SensorID: "adcp", Timestamp: testTime, Depth: ptr(3.0)}); err != nil {
		t.Fatal(err)
	}
	if got := len(mem.Records()); got != 1 {
		t.Errorf("records = %d, want 1", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := mem.Write(ctx, Record{SensorID: "adcp", Timestamp: testTime, Depth: ptr(3.0)}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled write error = %v", err)
	}
	if got := len(mem.Records()); got != 1 {
		t.Errorf("cancelled write was stored")
	}
}

func TestBreakerSinkOpensAfterFailures(t *testing.T) {
	t.Parallel()

	mem := NewMemorySink(TableTimeseries)
	mem.FailWith(errors.New("disk full"))
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	b := NewBreakerSink(mem, cfg)

	rec := Record{SensorID: "ctd01", Timestamp: testTime, Value: 1}
	for i := 0; i < 2; i++ {
		if err := b.Write(context.Background(), rec); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	mem.FailWith(nil)
	if err := b.Write(context.Background(), rec); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker error = %v", err)
	}
	if len(mem.Records()) != 0 {
		t.Error("open breaker let a write through")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 1
	b := NewBreakerSink(NewMemorySink(TableTimeseries), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_ = b.Write(ctx, Record{SensorID: "ctd01", Timestamp: testTime})
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("cancelled writes tripped the breaker: %v", b.State())
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Backend = "cassandra"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg.Backend = BackendTimescale
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for timescale without dsn")
	}
}
