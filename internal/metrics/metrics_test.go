// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAppend(t *testing.T) {
	before := testutil.ToFloat64(RevisionAppends.WithLabelValues("Person"))
	beforeConflicts := testutil.ToFloat64(RevisionConflicts.WithLabelValues("Person"))

	RecordAppend("Person", time.Millisecond, false)
	RecordAppend("Person", time.Millisecond, true)

	if got := testutil.ToFloat64(RevisionAppends.WithLabelValues("Person")) - before; got != 1 {
		t.Errorf("appends delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RevisionConflicts.WithLabelValues("Person")) - beforeConflicts; got != 1 {
		t.Errorf("conflicts delta = %v, want 1", got)
	}
}

func TestRecordSinkWrite(t *testing.T) {
	before := testutil.ToFloat64(SinkWriteErrors.WithLabelValues("profile"))

	RecordSinkWrite("profile", 2*time.Millisecond, nil)
	RecordSinkWrite("profile", 2*time.Millisecond, errors.New("timeout"))

	if got := testutil.ToFloat64(SinkWriteErrors.WithLabelValues("profile")) - before; got != 1 {
		t.Errorf("sink error delta = %v, want 1", got)
	}
}

func TestRecordRoutingEmptyTarget(t *testing.T) {
	before := testutil.ToFloat64(ObservationsRouted.WithLabelValues("none", "rejected"))

	RecordRouting("", "rejected", time.Millisecond)

	if got := testutil.ToFloat64(ObservationsRouted.WithLabelValues("none", "rejected")) - before; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}

func TestRecordCatalogOperation(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		result string
	}{
		{"success", nil, "ok"},
		{"failure", errors.New("conflict"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CatalogOperations.WithLabelValues("create", "Sensor", tt.result)
			before := testutil.ToFloat64(c)
			RecordCatalogOperation("create", "Sensor", tt.err)
			if got := testutil.ToFloat64(c) - before; got != 1 {
				t.Errorf("delta = %v, want 1", got)
			}
		})
	}
}
