// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tidemark/internal/config"
	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/eventprocessor"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/supervisor"
)

func testConfig() *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{InMemory: true},
		Catalog:  config.CatalogConfig{MaxUpdateAttempts: 5, DefaultAuthor: "test"},
		Routing:  config.RoutingConfig{ClassificationCacheTTL: time.Minute, MaxClassifyAttempts: 3},
		Sinks:    config.SinksConfig{Backend: "memory"},
		Dispatch: config.DispatchConfig{RedispatchInterval: time.Hour, MaxTxnAttempts: 10, Bus: "memory"},
		Server: config.ServerConfig{
			Timeout:           5 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitDisabled: true,
		},
	}
}

// idleServer stands in for *http.Server; requests go through app.handler.
type idleServer struct{ stop chan struct{} }

func (s *idleServer) ListenAndServe() error {
	<-s.stop
	return http.ErrServerClosed
}

func (s *idleServer) Shutdown(context.Context) error {
	close(s.stop)
	return nil
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return a
}

func TestNewAppReadiness(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d, body %s", rec.Code, rec.Body)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"job_bus":"ok"`)) {
		t.Errorf("ready body = %s", rec.Body)
	}

	if err := a.bus.Close(); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after bus close = %d", rec.Code)
	}
}

func TestNewAppRejectsUnknownBackend(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Sinks.Backend = "parquet"
	if a, err := newApp(context.Background(), cfg); err == nil {
		_ = a.Close()
		t.Fatal("expected error for unknown sink backend")
	}
}

func TestAppJobRoundTrip(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, e := range []struct {
		kind models.Kind
		id   string
		doc  *models.Document
	}{
		{models.KindProcess, "avg30", &models.Document{Process: &models.ProcessSpec{Kind: models.ProcessAveraging, Period: "30m"}}},
		{models.KindSensor, "ctd", &models.Document{Sensor: &models.SensorSpec{
			DataType:  models.DataTypeTimeseries,
			Variables: []models.Variable{{Name: "TEMP", Units: "degC"}},
			Processes: []string{"avg30"},
		}}},
	} {
		if _, err := a.catalog.Create(ctx, e.kind, e.id, e.doc, "seed"); err != nil {
			t.Fatalf("create %s: %v", e.id, err)
		}
	}

	jobs, err := a.bus.Subscriber().Subscribe(ctx, eventprocessor.TopicAveraging)
	if err != nil {
		t.Fatal(err)
	}

	tree := supervisor.NewSupervisorTree(slog.New(slog.NewTextHandler(io.Discard, nil)), supervisor.DefaultTreeConfig())
	a.addServices(tree, &idleServer{stop: make(chan struct{})})
	errCh := tree.ServeBackground(ctx)

	body, _ := json.Marshal(map[string]any{
		"id": "obs-1", "sensorId": "ctd", "timestamp": "2026-05-01T12:07:00Z", "value": 13.2,
	})
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/observations", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("route status = %d, body %s", rec.Code, rec.Body)
	}

	var job *dispatch.Job
	select {
	case msg := <-jobs:
		msg.Ack()
		if job, err = eventprocessor.DecodeJob(msg); err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no job published")
	}
	if job.Key.SensorID != "ctd" || job.Key.ProcessID != "avg30" || job.Key.Window != "2026-05-01T12:00:00Z" {
		t.Fatalf("job key = %+v", job.Key)
	}

	// The consumer subscribes asynchronously; resend until it lands.
	deadline := time.Now().Add(3 * time.Second)
	for {
		msg, err := eventprocessor.EncodeResult(dispatch.JobResult{Key: job.Key, Success: true})
		if err != nil {
			t.Fatal(err)
		}
		if err := a.bus.Publisher().Publish(eventprocessor.TopicResults, msg); err != nil {
			t.Fatal(err)
		}
		got, err := a.jobs.Job(ctx, job.Key)
		if err != nil {
			t.Fatal(err)
		}
		if got.State == dispatch.JobSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job state = %s", got.State)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree: %v", err)
		}
	}
}
