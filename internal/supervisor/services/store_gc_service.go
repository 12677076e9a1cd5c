// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package services

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/tidemark/internal/logging"
)

// GarbageCollector compacts storage. *revision.Store implements it.
type GarbageCollector interface {
	RunGC(ratio float64) (int, error)
}

// StoreGCService runs value-log garbage collection every interval. GC
// failures are logged and retried on the next tick; the service itself
// only stops with its context.
type StoreGCService struct {
	store    GarbageCollector
	interval time.Duration
	ratio    float64
	clock    clockwork.Clock
}

// NewStoreGCService creates the service.
func NewStoreGCService(store GarbageCollector, interval time.Duration, ratio float64) *StoreGCService {
	return &StoreGCService{store: store, interval: interval, ratio: ratio, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock; used by tests.
func (s *StoreGCService) WithClock(c clockwork.Clock) *StoreGCService {
	s.clock = c
	return s
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			start := s.clock.Now()
			n, err := s.store.RunGC(s.ratio)
			if err != nil {
				logging.Warn().Err(err).Msg("Store garbage collection failed")
				continue
			}
			if n > 0 {
				logging.Info().Int("rewritten", n).Dur("duration", s.clock.Since(start)).Msg("Store garbage collection finished")
			}
		}
	}
}

func (s *StoreGCService) String() string {
	return "store-gc"
}
