// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/models"
)

// KindJob labels jobs in NotFoundError.
const KindJob models.Kind = "Job"

// Key identifies a derived computation. At most one job exists per key.
type Key struct {
	SensorID  string `json:"sensorId"`
	ProcessID string `json:"processId"`
	// Window is the window start in RFC 3339 for averaging, or
	// "observation:<id>" for windowless processes.
	Window string `json:"window"`
}

// String renders the key as sensor/process/window. Entity ids never contain
// '/', so ParseKey can split it back even when the window does.
func (k Key) String() string {
	return k.SensorID + "/" + k.ProcessID + "/" + k.Window
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("malformed job key %q", s)
	}
	return Key{SensorID: parts[0], ProcessID: parts[1], Window: parts[2]}, nil
}

// AveragingWindow returns the period-aligned window containing ts. Windows
// are aligned to the Unix epoch in UTC. Whole-second periods are computed
// in seconds so timestamps outside the nanosecond range still align.
func AveragingWindow(ts time.Time, period time.Duration) (start, end time.Time) {
	ts = ts.UTC()
	if period >= time.Second && period%time.Second == 0 {
		p := int64(period / time.Second)
		start = time.Unix(floorMultiple(ts.Unix(), p), 0).UTC()
	} else {
		start = time.Unix(0, floorMultiple(ts.UnixNano(), int64(period))).UTC()
	}
	return start, start.Add(period)
}

func floorMultiple(n, p int64) int64 {
	s := n / p * p
	if n < 0 && n%p != 0 {
		s -= p
	}
	return s
}

func averagingKey(sensorID, processID string, start time.Time) Key {
	return Key{SensorID: sensorID, ProcessID: processID, Window: start.UTC().Format(time.RFC3339Nano)}
}

func inferenceKey(sensorID, processID, observationID string) Key {
	return Key{SensorID: sensorID, ProcessID: processID, Window: "observation:" + observationID}
}

// JobState is the lifecycle of a job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Completed reports whether an outcome has been recorded.
func (s JobState) Completed() bool {
	return s == JobSucceeded || s == JobFailed
}

// Job is one scheduled derived computation.
type Job struct {
	Key           Key                `json:"key"`
	ProcessKind   models.ProcessKind `json:"processKind"`
	WindowStart   *time.Time         `json:"windowStart,omitempty"`
	WindowEnd     *time.Time         `json:"windowEnd,omitempty"`
	ObservationID string             `json:"observationId,omitempty"`
	ModelName     string             `json:"modelName,omitempty"`
	Variables     []string           `json:"variables,omitempty"`

	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	Published   bool            `json:"published"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
}

// JobResult is what a worker reports back.
type JobResult struct {
	Key     Key             `json:"key"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}

// Outcome is the result of scheduling one process for one delivery.
type Outcome struct {
	Key          Key  `json:"key"`
	Enqueued     bool `json:"enqueued"`
	Deduplicated bool `json:"deduplicated"`
	Published    bool `json:"published"`
}
