// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package dispatch

import (
	"context"
	"errors"

	"github.com/tomtom215/tidemark/internal/logging"
)

// Redispatcher periodically republishes pending jobs whose first publish
// failed. It implements suture.Service.
type Redispatcher struct {
	d *Dispatcher
}

// NewRedispatcher returns the background retry service for d.
func NewRedispatcher(d *Dispatcher) *Redispatcher {
	return &Redispatcher{d: d}
}

// Serve runs until ctx is cancelled. A failed pass is logged and retried on
// the next tick.
func (r *Redispatcher) Serve(ctx context.Context) error {
	ticker := r.d.clock.NewTicker(r.d.cfg.RedispatchInterval)
	defer ticker.Stop()

	logging.Info().Dur("interval", r.d.cfg.RedispatchInterval).Msg("Job redispatcher started")
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Job redispatcher stopped")
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := r.d.Redispatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error().Err(err).Msg("Job redispatch pass failed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (r *Redispatcher) String() string {
	return "job-redispatcher"
}
