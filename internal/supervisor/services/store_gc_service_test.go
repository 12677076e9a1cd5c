// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type fakeGC struct {
	mu     sync.Mutex
	ratios []float64
	err    error
	ran    chan struct{}
}

func (f *fakeGC) RunGC(ratio float64) (int, error) {
	f.mu.Lock()
	f.ratios = append(f.ratios, ratio)
	err := f.err
	f.mu.Unlock()
	f.ran <- struct{}{}
	return 1, err
}

func (f *fakeGC) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ratios)
}

func TestStoreGCServiceRunsEveryInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"failures do not stop the service", errors.New("value log busy")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gc := &fakeGC{err: tt.err, ran: make(chan struct{}, 4)}
			clock := clockwork.NewFakeClock()
			svc := NewStoreGCService(gc, time.Minute, 0.5).WithClock(clock)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- svc.Serve(ctx) }()

			for i := 0; i < 2; i++ {
				if err := clock.BlockUntilContext(ctx, 1); err != nil {
					t.Fatal(err)
				}
				clock.Advance(time.Minute)
				select {
				case <-gc.ran:
				case <-time.After(2 * time.Second):
					t.Fatalf("GC did not run on tick %d", i+1)
				}
			}

			cancel()
			if err := <-done; !errors.Is(err, context.Canceled) {
				t.Errorf("Serve = %v", err)
			}
			if gc.calls() != 2 {
				t.Errorf("RunGC calls = %d, want 2", gc.calls())
			}
			if gc.ratios[0] != 0.5 {
				t.Errorf("ratio = %v", gc.ratios[0])
			}
			if svc.String() != "store-gc" {
				t.Errorf("String() = %q", svc.String())
			}
		})
	}
}
