// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package dispatch schedules derived-data jobs for delivered observations.
//
// Every process a sensor subscribes to yields a job key per delivery:
// averaging processes key on the period-aligned window of the observation,
// inference processes on the observation itself. A job is created at most
// once per key; the existence check and the insert share one badger
// transaction. Jobs are then published to workers over the event bus, and
// worker results are recorded with Complete.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/badger/v4"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/metrics"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/routing"
)

var (
	// ErrJobAlreadyCompleted is returned when a job outcome is recorded twice.
	ErrJobAlreadyCompleted = errors.New("job already completed")
	// ErrJobNotFailed is returned when requeueing a job that has not failed.
	ErrJobNotFailed = errors.New("only failed jobs can be requeued")
)

// Catalog is the part of the entity catalog the dispatcher reads.
type Catalog interface {
	Sensor(ctx context.Context, id string) (*models.Entity, error)
	Process(ctx context.Context, id string) (*models.Entity, error)
}

// Publisher hands jobs to workers.
type Publisher interface {
	PublishJob(ctx context.Context, job *Job) error
}

// Config tunes the dispatcher.
type Config struct {
	// MaxTxnAttempts bounds retries of a ledger transaction that lost a
	// badger conflict.
	MaxTxnAttempts int
	// RedispatchInterval is how often unpublished pending jobs are retried.
	RedispatchInterval time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{MaxTxnAttempts: 10, RedispatchInterval: 30 * time.Second}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for job timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithPublisher sets the job publisher. Without one, jobs stay pending and
// unpublished until Redispatch finds a publisher.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// Dispatcher schedules and tracks derived-data jobs.
type Dispatcher struct {
	db      *badger.DB
	catalog Catalog
	clock   clockwork.Clock
	cfg     Config

	mu        sync.RWMutex
	publisher Publisher
}

// New returns a dispatcher keeping its ledger in db. The ledger uses its
// own key prefixes and can share a database with the revision store.
func New(db *badger.DB, catalog Catalog, cfg Config, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxTxnAttempts <= 0 {
		cfg.MaxTxnAttempts = def.MaxTxnAttempts
	}
	if cfg.RedispatchInterval <= 0 {
		cfg.RedispatchInterval = def.RedispatchInterval
	}
	d := &Dispatcher{db: db, catalog: catalog, clock: clockwork.NewRealClock(), cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPublisher replaces the publisher; used once the event bus is up. It
// is safe to call while jobs are being dispatched.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.mu.Lock()
	d.publisher = p
	d.mu.Unlock()
}

func (d *Dispatcher) currentPublisher() Publisher {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.publisher
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// OnDelivered implements routing.DeliveryListener.
func (d *Dispatcher) OnDelivered(ctx context.Context, delivery routing.Delivery) error {
	_, err := d.Dispatch(ctx, delivery)
	return err
}

// Dispatch schedules every process of the delivered observation's sensor.
// Processes that are listed on the sensor but missing from the catalog are
// reported in the returned error; the remaining ones are still scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery routing.Delivery) ([]Outcome, error) {
	obs := delivery.Observation
	sensor, err := d.catalog.Sensor(ctx, obs.SensorID)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", obs.ID, err)
	}
	spec := sensor.Payload.Sensor
	if spec == nil || len(spec.Processes) == 0 {
		return nil, nil
	}

	var (
		outcomes []Outcome
		missing  []models.Ref
		errs     []error
	)
	for _, pid := range spec.Processes {
		proc, err := d.catalog.Process(ctx, pid)
		if isNotFound(err) {
			missing = append(missing, models.Ref{Kind: models.KindProcess, ID: pid})
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("load process %s: %w", pid, err))
			continue
		}

		job, ok, err := d.jobFor(sensor, proc, delivery)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}

		out, err := d.Enqueue(ctx, job)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outcomes = append(outcomes, out)
	}

	if len(missing) > 0 {
		errs = append(errs, &models.IntegrityError{Kind: models.KindSensor, ID: sensor.ID, Missing: missing})
	}
	return outcomes, errors.Join(errs...)
}

// jobFor builds the job a process needs for one delivery. ok is false when
// the process does not apply to this observation.
func (d *Dispatcher) jobFor(sensor, proc *models.Entity, delivery routing.Delivery) (*Job, bool, error) {
	spec := proc.Payload.Process
	if spec == nil {
		return nil, false, fmt.Errorf("process %s has no process section", proc.ID)
	}
	obs := delivery.Observation

	switch spec.Kind {
	case models.ProcessAveraging:
		if delivery.Target != routing.TargetTimeseries && delivery.Target != routing.TargetProfile {
			return nil, false, nil
		}
		if v, ok := obs.Params["variable"].(string); ok && spec.Ignores(v) {
			return nil, false, nil
		}
		period, err := spec.PeriodDuration()
		if err != nil {
			return nil, false, fmt.Errorf("process %s: %w", proc.ID, err)
		}
		start, end := AveragingWindow(obs.Timestamp, period)
		var vars []string
		for _, v := range sensor.Payload.Sensor.Variables {
			if !spec.Ignores(v.Name) {
				vars = append(vars, v.Name)
			}
		}
		return &Job{
			Key:         averagingKey(sensor.ID, proc.ID, start),
			ProcessKind: spec.Kind,
			WindowStart: &start,
			WindowEnd:   &end,
			Variables:   vars,
		}, true, nil

	case models.ProcessInference:
		return &Job{
			Key:           inferenceKey(sensor.ID, proc.ID, obs.ID),
			ProcessKind:   spec.Kind,
			ObservationID: obs.ID,
			ModelName:     spec.ModelName,
		}, true, nil

	default:
		return nil, false, fmt.Errorf("process %s: unknown kind %q", proc.ID, spec.Kind)
	}
}

// Enqueue inserts job unless a job with the same key already exists in any
// state. The check and the insert are one transaction; a transaction that
// loses a conflict is retried and then sees the winner's job.
func (d *Dispatcher) Enqueue(ctx context.Context, job *Job) (Outcome, error) {
	now := d.clock.Now().UTC()
	job.State = JobPending
	job.Attempts = 1
	job.Published = false
	job.EnqueuedAt = now
	job.UpdatedAt = now

	var dedup bool
	err := d.update(ctx, func(txn *badger.Txn) error {
		_, err := readJob(txn, job.Key)
		switch {
		case err == nil:
			dedup = true
			return nil
		case !isNotFound(err):
			return err
		}
		dedup = false
		return writeJob(txn, job)
	})
	if err != nil {
		return Outcome{Key: job.Key}, fmt.Errorf("enqueue %s: %w", job.Key, err)
	}

	kind := string(job.ProcessKind)
	if dedup {
		metrics.JobsDeduplicated.WithLabelValues(kind).Inc()
		logging.Ctx(ctx).Debug().Str("job", job.Key.String()).Msg("Job already scheduled")
		return Outcome{Key: job.Key, Deduplicated: true}, nil
	}
	metrics.JobsEnqueued.WithLabelValues(kind).Inc()
	logging.Ctx(ctx).Info().Str("job", job.Key.String()).Str("process_kind", kind).Msg("Job enqueued")

	out := Outcome{Key: job.Key, Enqueued: true}
	out.Published = d.publish(ctx, job)
	return out, nil
}

// publish hands a pending job to the publisher and records that it was
// sent. Failures leave the job for Redispatch.
func (d *Dispatcher) publish(ctx context.Context, job *Job) bool {
	pub := d.currentPublisher()
	if pub == nil {
		return false
	}
	if err := pub.PublishJob(ctx, job); err != nil {
		metrics.JobPublishFailures.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("job", job.Key.String()).Msg("Job publish failed, will retry")
		return false
	}

	err := d.update(ctx, func(txn *badger.Txn) error {
		cur, err := readJob(txn, job.Key)
		if err != nil {
			return err
		}
		if cur.State != JobPending || cur.Published {
			return nil
		}
		cur.Published = true
		cur.UpdatedAt = d.clock.Now().UTC()
		return writeJob(txn, cur)
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("job", job.Key.String()).Msg("Failed to mark job published")
		return false
	}
	job.Published = true
	return true
}

// Complete records a worker outcome exactly once.
func (d *Dispatcher) Complete(ctx context.Context, res JobResult) (*Job, error) {
	var done *Job
	err := d.update(ctx, func(txn *badger.Txn) error {
		job, err := readJob(txn, res.Key)
		if err != nil {
			return err
		}
		if job.State.Completed() {
			return fmt.Errorf("%s (%s): %w", res.Key, job.State, ErrJobAlreadyCompleted)
		}
		now := d.clock.Now().UTC()
		job.State = JobSucceeded
		job.Error = ""
		if !res.Success {
			job.State = JobFailed
			job.Error = res.Error
		}
		job.Output = res.Output
		job.CompletedAt = &now
		job.UpdatedAt = now
		done = job
		return writeJob(txn, job)
	})
	if err != nil {
		return nil, err
	}
	metrics.JobsCompleted.WithLabelValues(string(done.State)).Inc()
	logging.Ctx(ctx).Info().Str("job", res.Key.String()).Str("state", string(done.State)).Msg("Job completed")
	return done, nil
}

// Job returns the job stored under key.
func (d *Dispatcher) Job(ctx context.Context, key Key) (*Job, error) {
	var job *Job
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		job, err = readJob(txn, key)
		return err
	})
	return job, err
}

// Pending returns every pending job in key order.
func (d *Dispatcher) Pending(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	err := d.db.View(func(txn *badger.Txn) error {
		keys, err := pendingKeys(txn)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			job, err := readJob(txn, k)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.JobsPending.Set(float64(len(jobs)))
	return jobs, nil
}

// Requeue puts a failed job back to pending for another attempt and
// publishes it again.
func (d *Dispatcher) Requeue(ctx context.Context, key Key) (*Job, error) {
	var job *Job
	err := d.update(ctx, func(txn *badger.Txn) error {
		cur, err := readJob(txn, key)
		if err != nil {
			return err
		}
		if cur.State != JobFailed {
			return fmt.Errorf("%s is %s: %w", key, cur.State, ErrJobNotFailed)
		}
		cur.State = JobPending
		cur.Attempts++
		cur.Published = false
		cur.Error = ""
		cur.Output = nil
		cur.CompletedAt = nil
		cur.UpdatedAt = d.clock.Now().UTC()
		job = cur
		return writeJob(txn, cur)
	})
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("job", key.String()).Int("attempt", job.Attempts).Msg("Job requeued")
	d.publish(ctx, job)
	return job, nil
}

// Redispatch publishes pending jobs that were never handed to a worker.
// It returns how many were published.
func (d *Dispatcher) Redispatch(ctx context.Context) (int, error) {
	jobs, err := d.Pending(ctx)
	if err != nil {
		return 0, err
	}
	var sent int
	for _, job := range jobs {
		if job.Published {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if d.publish(ctx, job) {
			sent++
		}
	}
	if sent > 0 {
		logging.Info().Int("published", sent).Msg("Redispatched pending jobs")
	}
	return sent, nil
}

// update runs fn in a read-write transaction, retrying badger conflicts.
func (d *Dispatcher) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Millisecond
	eb.MaxInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(d.cfg.MaxTxnAttempts)))
	return err
}
