// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/tidemark/internal/logging"
)

func schemaStatements(d Dialect) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS timeseries (
			"timestamp" TIMESTAMPTZ NOT NULL,
			sensor_id VARCHAR NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			qc_flag SMALLINT
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			"timestamp" TIMESTAMPTZ NOT NULL,
			sensor_id VARCHAR NOT NULL,
			depth DOUBLE PRECISION NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			qc_flag SMALLINT
		)`,
		`CREATE TABLE IF NOT EXISTS detections (
			"timestamp" TIMESTAMPTZ NOT NULL,
			sensor_id VARCHAR NOT NULL,
			value BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS observations (
			id VARCHAR PRIMARY KEY,
			"timestamp" TIMESTAMPTZ NOT NULL,
			sensor_id VARCHAR NOT NULL,
			result %[1]s NOT NULL,
			parameters %[1]s
		)`, d.JSONType),
		`CREATE INDEX IF NOT EXISTS idx_timeseries_sensor_time ON timeseries (sensor_id, "timestamp")`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_sensor_time ON profiles (sensor_id, "timestamp")`,
		`CREATE INDEX IF NOT EXISTS idx_detections_sensor_time ON detections (sensor_id, "timestamp")`,
	}
	if d.Hypertables {
		stmts = append([]string{`CREATE EXTENSION IF NOT EXISTS timescaledb`}, stmts...)
		for _, t := range []Table{TableTimeseries, TableProfiles, TableDetections} {
			stmts = append(stmts, fmt.Sprintf(
				`SELECT create_hypertable('%s', 'timestamp', if_not_exists => TRUE, migrate_data => TRUE)`, t))
		}
	}
	return stmts
}

// Migrate creates the sink tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	logging.Info().Str("dialect", d.Name).Msg("Running sink migrations")
	for _, stmt := range schemaStatements(d) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sink migration (%s): %w", d.Name, err)
		}
	}
	return nil
}
