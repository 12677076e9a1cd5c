// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/models"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(DefaultConfig())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestTopicFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind    models.ProcessKind
		want    string
		wantErr bool
	}{
		{models.ProcessAveraging, TopicAveraging, false},
		{models.ProcessInference, TopicInference, false},
		{"smoothing", "", true},
	}
	for _, tt := range tests {
		got, err := TopicFor(tt.kind)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownProcessKind) {
				t.Errorf("TopicFor(%q) error = %v, want ErrUnknownProcessKind", tt.kind, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("TopicFor(%q) = %q, %v; want %q", tt.kind, got, err, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"nats with url", func(c *Config) { c.Backend = BackendNATS }, false},
		{"nats without url", func(c *Config) { c.Backend = BackendNATS; c.NATS.URL = "" }, true},
		{"unknown backend", func(c *Config) { c.Backend = "kafka" }, true},
		{"zero threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	bus, err := NewBus(DefaultConfig())
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	if bus.Backend() != BackendMemory {
		t.Errorf("Backend() = %q", bus.Backend())
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !bus.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestJobPublisherPublishesOnProcessTopic(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscriber().Subscribe(ctx, TopicAveraging)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	job := &dispatch.Job{
		Key:         dispatch.Key{SensorID: "ctd-01", ProcessID: "avg30", Window: start.Format(time.RFC3339Nano)},
		ProcessKind: models.ProcessAveraging,
		WindowStart: &start,
		WindowEnd:   &end,
		Variables:   []string{"TEMP"},
		State:       dispatch.JobPending,
		Attempts:    2,
	}
	pub := NewJobPublisher(bus.Publisher(), NewCircuitBreaker(DefaultCircuitBreakerConfig("test-publish")))
	if err := pub.PublishJob(ctx, job); err != nil {
		t.Fatalf("PublishJob: %v", err)
	}

	msg := receive(t, msgs)
	if got := msg.Metadata.Get(MetaJobKey); got != job.Key.String() {
		t.Errorf("job_key = %q, want %q", got, job.Key.String())
	}
	if got := msg.Metadata.Get(MetaProcessKind); got != "averaging" {
		t.Errorf("process_kind = %q", got)
	}
	if got := msg.Metadata.Get(MetaAttempt); got != "2" {
		t.Errorf("attempt = %q", got)
	}
	decoded, err := DecodeJob(msg)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if decoded.Key != job.Key || !decoded.WindowStart.Equal(start) {
		t.Errorf("decoded job = %+v", decoded)
	}
	if pub.State() != "closed" {
		t.Errorf("State() = %q, want closed", pub.State())
	}
}

func TestJobPublisherRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t)
	pub := NewJobPublisher(bus.Publisher(), nil)
	err := pub.PublishJob(context.Background(), &dispatch.Job{ProcessKind: "smoothing"})
	if !errors.Is(err, ErrUnknownProcessKind) {
		t.Fatalf("PublishJob error = %v, want ErrUnknownProcessKind", err)
	}
	if pub.State() != "disabled" {
		t.Errorf("State() = %q, want disabled", pub.State())
	}
}

type failingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return errors.New("connection refused")
}

func (p *failingPublisher) Close() error { return nil }

func TestJobPublisherBreakerOpens(t *testing.T) {
	t.Parallel()
	cfg := DefaultCircuitBreakerConfig("test-open")
	cfg.FailureThreshold = 3
	cfg.Timeout = time.Hour
	fp := &failingPublisher{}
	pub := NewJobPublisher(fp, NewCircuitBreaker(cfg))

	job := &dispatch.Job{
		Key:         dispatch.Key{SensorID: "cam-01", ProcessID: "yolo", Window: "observation:o1"},
		ProcessKind: models.ProcessInference,
	}
	for i := 0; i < 3; i++ {
		if err := pub.PublishJob(context.Background(), job); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
	}
	err := pub.PublishJob(context.Background(), job)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("error = %v, want ErrOpenState", err)
	}
	if fp.calls != 3 {
		t.Errorf("publisher called %d times, want 3", fp.calls)
	}
	if pub.State() != "open" {
		t.Errorf("State() = %q, want open", pub.State())
	}
}

type fakeCompleter struct {
	mu      sync.Mutex
	results []dispatch.JobResult
	err     error
	done    chan struct{}
}

func newFakeCompleter(err error) *fakeCompleter {
	return &fakeCompleter{err: err, done: make(chan struct{}, 16)}
}

func (f *fakeCompleter) Complete(_ context.Context, res dispatch.JobResult) (*dispatch.Job, error) {
	f.mu.Lock()
	f.results = append(f.results, res)
	f.mu.Unlock()
	defer func() { f.done <- struct{}{} }()
	if f.err != nil {
		return nil, f.err
	}
	state := dispatch.JobSucceeded
	if !res.Success {
		state = dispatch.JobFailed
	}
	return &dispatch.Job{Key: res.Key, State: state}, nil
}

func (f *fakeCompleter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Complete")
	}
}

func startConsumer(t *testing.T, bus *Bus, completer Completer) {
	t.Helper()
	cfg := DefaultRouterConfig()
	cfg.RetryMaxRetries = 1
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.CloseTimeout = time.Second

	consumer := NewResultsConsumer(bus, completer, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- consumer.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-consumer.Ready():
			return
		case <-deadline:
			t.Fatal("results consumer never became ready")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func publishResult(t *testing.T, bus *Bus, res dispatch.JobResult) {
	t.Helper()
	msg, err := EncodeResult(res)
	if err != nil {
		t.Fatalf("EncodeResult: %v", err)
	}
	if err := bus.Publisher().Publish(TopicResults, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestResultsConsumerCompletesJobs(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t)
	completer := newFakeCompleter(nil)
	startConsumer(t, bus, completer)

	key := dispatch.Key{SensorID: "ctd-01", ProcessID: "avg30", Window: "2026-03-01T12:00:00Z"}
	publishResult(t, bus, dispatch.JobResult{Key: key, Success: true, Output: []byte(`{"mean":12.5}`)})
	completer.wait(t)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	if len(completer.results) != 1 || completer.results[0].Key != key || !completer.results[0].Success {
		t.Fatalf("results = %+v", completer.results)
	}
}

func TestResultsConsumerAcksBenignErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
	}{
		{"already completed", dispatch.ErrJobAlreadyCompleted},
		{"unknown job", &models.NotFoundError{Kind: dispatch.KindJob, ID: "x/y/z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := newTestBus(t)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			poison, err := bus.Subscriber().Subscribe(ctx, TopicResultsPoison)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			completer := newFakeCompleter(tt.err)
			startConsumer(t, bus, completer)

			publishResult(t, bus, dispatch.JobResult{Key: dispatch.Key{SensorID: "x", ProcessID: "y", Window: "z"}})
			completer.wait(t)

			select {
			case <-completer.done:
				t.Fatal("benign error was retried")
			case msg := <-poison:
				msg.Ack()
				t.Fatal("benign error reached the poison queue")
			case <-time.After(100 * time.Millisecond):
			}
		})
	}
}

func TestResultsConsumerPoisonsAfterRetries(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poison, err := bus.Subscriber().Subscribe(ctx, TopicResultsPoison)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	completer := newFakeCompleter(errors.New("ledger unavailable"))
	startConsumer(t, bus, completer)

	key := dispatch.Key{SensorID: "cam-01", ProcessID: "yolo", Window: "observation:o9"}
	publishResult(t, bus, dispatch.JobResult{Key: key, Success: false, Error: "model crashed"})

	msg := receive(t, poison)
	if got := msg.Metadata.Get(MetaJobKey); got != key.String() {
		t.Errorf("poisoned job_key = %q, want %q", got, key.String())
	}
	completer.mu.Lock()
	defer completer.mu.Unlock()
	if len(completer.results) != 2 {
		t.Errorf("Complete called %d times, want 2 (first try plus one retry)", len(completer.results))
	}
}

func TestResultsConsumerDropsMalformed(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t)
	completer := newFakeCompleter(nil)
	startConsumer(t, bus, completer)

	if err := bus.Publisher().Publish(TopicResults, message.NewMessage("bad-1", []byte(`{"key":{}}`))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	good := dispatch.Key{SensorID: "s", ProcessID: "p", Window: "w"}
	publishResult(t, bus, dispatch.JobResult{Key: good, Success: true})
	completer.wait(t)

	completer.mu.Lock()
	defer completer.mu.Unlock()
	if len(completer.results) != 1 || completer.results[0].Key != good {
		t.Fatalf("results = %+v, want only the well-formed one", completer.results)
	}
}
