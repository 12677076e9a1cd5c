// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package sink

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/metrics"
)

// Dialect captures the differences between the SQL backends.
type Dialect struct {
	Name        string
	JSONType    string
	Hypertables bool
}

var (
	// Timescale is PostgreSQL with the timescaledb extension.
	Timescale = Dialect{Name: "timescale", JSONType: "JSONB", Hypertables: true}
	// DuckDB is the embedded analytical database.
	DuckDB = Dialect{Name: "duckdb", JSONType: "JSON"}
)

// SQLSink inserts records into one table of a database/sql handle.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	table   Table
}

// NewSQLSink returns a sink for table.
func NewSQLSink(db *sql.DB, dialect Dialect, table Table) *SQLSink {
	return &SQLSink{db: db, dialect: dialect, table: table}
}

// NewSQLSet returns one SQLSink per table sharing db.
func NewSQLSet(db *sql.DB, dialect Dialect, closers ...func() error) *Set {
	sinks := make(map[Table]Sink, len(Tables))
	for _, t := range Tables {
		sinks[t] = NewSQLSink(db, dialect, t)
	}
	return NewSet(sinks, closers...)
}

// Name implements Sink.
func (s *SQLSink) Name() string { return s.dialect.Name + ":" + string(s.table) }

// Write implements Sink. A nil error means the row is committed.
func (s *SQLSink) Write(ctx context.Context, r Record) (err error) {
	start := time.Now()
	defer func() { metrics.RecordSinkWrite(s.Name(), time.Since(start), err) }()

	if err := checkRecord(s.table, r); err != nil {
		return err
	}
	query, args, err := s.insert(r)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLSink) insert(r Record) (string, []any, error) {
	ts := r.Timestamp.UTC()

	switch s.table {
	case TableTimeseries:
		return `INSERT INTO timeseries ("timestamp", sensor_id, value, qc_flag) VALUES ($1, $2, $3, $4)`,
			[]any{ts, r.SensorID, r.Value, nullInt(r.QCFlag)}, nil
	case TableProfiles:
		return `INSERT INTO profiles ("timestamp", sensor_id, depth, value, qc_flag) VALUES ($1, $2, $3, $4, $5)`,
			[]any{ts, r.SensorID, *r.Depth, r.Value, nullInt(r.QCFlag)}, nil
	case TableDetections:
		if r.Value != math.Trunc(r.Value) {
			return "", nil, fmt.Errorf("detections record %s: value %v is not a count", r.ObservationID, r.Value)
		}
		return `INSERT INTO detections ("timestamp", sensor_id, value) VALUES ($1, $2, $3)`,
			[]any{ts, r.SensorID, int64(r.Value)}, nil
	case TableObservations:
		result, err := json.Marshal(map[string]any{"value": r.Value})
		if err != nil {
			return "", nil, err
		}
		params := []byte("{}")
		if len(r.Params) > 0 {
			if params, err = json.Marshal(r.Params); err != nil {
				return "", nil, fmt.Errorf("observation %s params: %w", r.ObservationID, err)
			}
		}
		query := fmt.Sprintf(
			`INSERT INTO observations (id, "timestamp", sensor_id, result, parameters) VALUES ($1, $2, $3, $4::%s, $5::%s)`,
			s.dialect.JSONType, s.dialect.JSONType)
		return query, []any{r.ObservationID, ts, r.SensorID, string(result), string(params)}, nil
	default:
		return "", nil, fmt.Errorf("unknown table %q", s.table)
	}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
