// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import "errors"

// ErrNATSNotEnabled is returned when the nats backend is selected in a
// binary built without the nats tag.
var ErrNATSNotEnabled = errors.New("NATS bus not enabled (build with -tags nats)")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("bus is closed")

// ErrUnknownProcessKind is returned for jobs with no topic.
var ErrUnknownProcessKind = errors.New("no topic for process kind")
