// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package models

import (
	"fmt"
	"strings"
)

// NotFoundError reports a missing entity or version. Version is zero when
// the latest version was requested.
type NotFoundError struct {
	Kind    Kind
	ID      string
	Version int64
}

func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s %q version %d not found", e.Kind, e.ID, e.Version)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// DuplicateError reports a create for an identifier already in use.
type DuplicateError struct {
	Kind Kind
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

// ConflictError reports a lost optimistic-concurrency race.
type ConflictError struct {
	Kind     Kind
	ID       string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: expected version %d, found %d", e.Kind, e.ID, e.Expected, e.Actual)
}

// IntegrityError lists references that do not resolve to existing entities.
type IntegrityError struct {
	Kind    Kind
	ID      string
	Missing []Ref
}

func (e *IntegrityError) Error() string {
	refs := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		refs[i] = r.String()
	}
	return fmt.Sprintf("%s %q references missing entities: %s", e.Kind, e.ID, strings.Join(refs, ", "))
}

// ImmutableFieldError reports a change to a field that can no longer change.
type ImmutableFieldError struct {
	Kind  Kind
	ID    string
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s %q: field %s is immutable once observations have been routed", e.Kind, e.ID, e.Field)
}

// UnknownSensorError reports an observation for a sensor not in the catalog.
type UnknownSensorError struct {
	SensorID      string
	ObservationID string
}

func (e *UnknownSensorError) Error() string {
	return fmt.Sprintf("observation %s: unknown sensor %q", e.ObservationID, e.SensorID)
}

// DeliveryError wraps a sink failure for one observation.
type DeliveryError struct {
	Sink          string
	ObservationID string
	Err           error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("observation %s: sink %s: %v", e.ObservationID, e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ValidationError reports a document or observation that is malformed.
type ValidationError struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("invalid %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UnchangedError reports an update that would not change the document.
type UnchangedError struct {
	Kind Kind
	ID   string
}

func (e *UnchangedError) Error() string {
	return fmt.Sprintf("%s %q: no changes detected", e.Kind, e.ID)
}
