// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService runs until cancelled, failing its first failures starts.
type countingService struct {
	name     string
	failures int32
	starts   atomic.Int32
	stops    atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	defer s.stops.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTreeConfigDefaults(t *testing.T) {
	t.Parallel()
	tree := NewSupervisorTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	got := tree.Config()
	def := DefaultTreeConfig()
	if got.FailureThreshold != def.FailureThreshold || got.FailureDecay != def.FailureDecay {
		t.Errorf("thresholds = %+v", got)
	}
	if got.FailureBackoff != time.Second {
		t.Errorf("explicit backoff overridden: %v", got.FailureBackoff)
	}
	if got.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("ShutdownTimeout = %v", got.ShutdownTimeout)
	}
}

func TestTreeStartsEveryLayer(t *testing.T) {
	t.Parallel()
	tree := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := &countingService{name: "data"}
	msg := &countingService{name: "messaging"}
	api := &countingService{name: "api"}
	tree.AddDataService(data)
	tree.AddMessagingService(msg)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	for _, svc := range []*countingService{data, msg, api} {
		waitFor(t, svc.name+" start", func() bool { return svc.starts.Load() >= 1 })
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
	for _, svc := range []*countingService{data, msg, api} {
		if svc.stops.Load() != svc.starts.Load() {
			t.Errorf("%s: %d starts, %d stops", svc.name, svc.starts.Load(), svc.stops.Load())
		}
	}
}

func TestFailingServiceIsRestartedInIsolation(t *testing.T) {
	t.Parallel()
	tree := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	flaky := &countingService{name: "flaky", failures: 2}
	stable := &countingService{name: "stable"}
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitFor(t, "flaky restarts", func() bool { return flaky.starts.Load() >= 3 })
	if stable.starts.Load() != 1 {
		t.Errorf("stable service restarted %d times", stable.starts.Load())
	}
}

func TestAddAndRemoveByLayer(t *testing.T) {
	t.Parallel()
	tree := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	if _, err := tree.Add(Layer("bogus"), &countingService{name: "x"}); err == nil {
		t.Error("Add to unknown layer succeeded")
	}

	svc := &countingService{name: "gc"}
	token, err := tree.Add(LayerData, svc)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)
	waitFor(t, "gc start", func() bool { return svc.starts.Load() == 1 })

	if err := tree.Remove(LayerData, token); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if svc.stops.Load() != 1 {
		t.Errorf("removed service stops = %d", svc.stops.Load())
	}
}
