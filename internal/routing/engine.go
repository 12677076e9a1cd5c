// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

// Package routing classifies observations by their sensor's data type and
// delivers them to the matching storage sink.
//
// Each observation moves Received -> Classified -> Delivered, or ends in
// Rejected. Routing the first observation of a sensor freezes the sensor's
// data type in the catalog; from then on the classification is cached.
// Observations of one sensor are delivered in the order Route was called.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/metrics"
	"github.com/tomtom215/tidemark/internal/models"
	"github.com/tomtom215/tidemark/internal/sink"
)

// ErrNoSink is returned when no sink serves a classified target.
var ErrNoSink = errors.New("no sink configured for target")

// Catalog is the part of the entity catalog routing depends on.
type Catalog interface {
	Sensor(ctx context.Context, id string) (*models.Entity, error)
	MarkRouted(ctx context.Context, sensorID string, version int64) error
}

// Sinks resolves a table to its sink. *sink.Set implements it.
type Sinks interface {
	Sink(t sink.Table) (sink.Sink, bool)
}

// Delivery describes an acknowledged observation.
type Delivery struct {
	Observation Observation
	Target      SinkTarget
}

// DeliveryListener is notified after a sink acknowledges an observation.
// The context passed to it is never cancelled by the routing caller.
type DeliveryListener interface {
	OnDelivered(ctx context.Context, d Delivery) error
}

// Receipt is the outcome of routing one observation.
type Receipt struct {
	ObservationID    string     `json:"observationId"`
	SensorID         string     `json:"sensorId"`
	State            State      `json:"state"`
	Target           SinkTarget `json:"target,omitempty"`
	Sink             string     `json:"sink,omitempty"`
	ReceivedAt       time.Time  `json:"receivedAt"`
	Error            string     `json:"error,omitempty"`
}

// Config tunes the engine.
type Config struct {
	// ClassificationCacheTTL bounds how long a frozen classification is
	// reused without asking the catalog.
	ClassificationCacheTTL time.Duration
	// MaxClassifyAttempts bounds re-classification when the sensor changes
	// between lookup and freeze.
	MaxClassifyAttempts int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ClassificationCacheTTL: 10 * time.Minute,
		MaxClassifyAttempts:    3,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for receipt timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithListener registers the delivery listener.
func WithListener(l DeliveryListener) Option {
	return func(e *Engine) { e.listener = l }
}

// Engine routes observations.
type Engine struct {
	catalog  Catalog
	sinks    Sinks
	listener DeliveryListener
	clock    clockwork.Clock
	cfg      Config

	cache *ttlcache.Cache[string, SinkTarget]
	seq   *sequencer
}

// New returns an engine. Call Stop to release the cache janitor.
func New(catalog Catalog, sinks Sinks, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.ClassificationCacheTTL <= 0 {
		cfg.ClassificationCacheTTL = def.ClassificationCacheTTL
	}
	if cfg.MaxClassifyAttempts <= 0 {
		cfg.MaxClassifyAttempts = def.MaxClassifyAttempts
	}

	e := &Engine{
		catalog: catalog,
		sinks:   sinks,
		clock:   clockwork.NewRealClock(),
		cfg:     cfg,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, SinkTarget](cfg.ClassificationCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, SinkTarget](),
		),
		seq: newSequencer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.cache.Start()
	return e
}

// Stop halts background cache expiry.
func (e *Engine) Stop() {
	e.cache.Stop()
}

// Classify returns the sink target of an observation without freezing the
// sensor. An unknown sensor yields *models.UnknownSensorError.
func (e *Engine) Classify(ctx context.Context, obs *Observation) (SinkTarget, error) {
	if t, ok := e.cached(obs.SensorID); ok {
		return t, nil
	}
	_, target, err := e.lookup(ctx, obs)
	return target, err
}

// Route classifies and delivers one observation. The returned receipt is
// always non-nil and records the terminal state; the error explains a
// rejection. Sink failures are not retried.
func (e *Engine) Route(ctx context.Context, obs Observation) (*Receipt, error) {
	start := time.Now()
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	receipt := &Receipt{
		ObservationID: obs.ID,
		SensorID:      obs.SensorID,
		State:         StateReceived,
		ReceivedAt:    e.clock.Now().UTC(),
	}
	ctx = logging.ContextWithObservation(ctx, obs.SensorID, obs.ID)
	log := logging.Ctx(ctx)

	reject := func(err error) (*Receipt, error) {
		receipt.State = StateRejected
		receipt.Error = err.Error()
		metrics.RecordRouting(string(receipt.Target), string(StateRejected), time.Since(start))
		log.Debug().Err(err).Str("target", string(receipt.Target)).Msg("Observation rejected")
		return receipt, err
	}

	if obs.SensorID == "" {
		return reject(obs.invalid(errors.New("sensor id is required")))
	}

	t := e.seq.take(obs.SensorID)
	if err := t.wait(ctx); err != nil {
		return reject(err)
	}
	defer t.release()

	var sk sink.Sink
	target, err := e.classifyAndFreeze(ctx, &obs, func(target SinkTarget) error {
		receipt.Target = target
		receipt.State = StateClassified
		if err := obs.Validate(target); err != nil {
			return err
		}
		s, ok := e.sinks.Sink(target.Table())
		if !ok {
			return fmt.Errorf("%s: %w", target, ErrNoSink)
		}
		sk = s
		return nil
	})
	if err != nil {
		return reject(err)
	}
	receipt.Sink = sk.Name()

	if err := ctx.Err(); err != nil {
		return reject(err)
	}
	if err := sk.Write(ctx, obs.Record(target)); err != nil {
		return reject(&models.DeliveryError{Sink: sk.Name(), ObservationID: obs.ID, Err: err})
	}

	receipt.State = StateDelivered
	metrics.RecordRouting(string(target), string(StateDelivered), time.Since(start))
	log.Debug().Str("target", string(target)).Str("sink", sk.Name()).Msg("Observation delivered")

	if e.listener != nil {
		if err := e.listener.OnDelivered(context.WithoutCancel(ctx), Delivery{Observation: obs, Target: target}); err != nil {
			// Delivery stands; dispatch failures are reported, not rolled back.
			log.Error().Err(err).Msg("Process dispatch after delivery failed")
		}
	}
	return receipt, nil
}

// classifyAndFreeze resolves the target, runs accept against it and only
// then freezes the sensor's data type against the exact version it was
// classified from. An observation that accept rejects leaves the sensor
// unfrozen. A concurrent sensor update between lookup and freeze forces a
// fresh classification.
func (e *Engine) classifyAndFreeze(ctx context.Context, obs *Observation, accept func(SinkTarget) error) (SinkTarget, error) {
	if t, ok := e.cached(obs.SensorID); ok {
		return t, accept(t)
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxClassifyAttempts; attempt++ {
		sensor, target, err := e.lookup(ctx, obs)
		if err != nil {
			return "", err
		}
		if err := accept(target); err != nil {
			return target, err
		}

		err = e.catalog.MarkRouted(ctx, sensor.ID, sensor.CurrentVersion)
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			lastErr = err
			logging.Ctx(ctx).Warn().Int("attempt", attempt+1).
				Msg("Sensor changed during classification, retrying")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("freeze data type of sensor %s: %w", sensor.ID, err)
		}

		e.cache.Set(sensor.ID, target, ttlcache.DefaultTTL)
		return target, nil
	}
	return "", lastErr
}

func (e *Engine) lookup(ctx context.Context, obs *Observation) (*models.Entity, SinkTarget, error) {
	metrics.ClassificationCacheMisses.Inc()

	sensor, err := e.catalog.Sensor(ctx, obs.SensorID)
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return nil, "", &models.UnknownSensorError{SensorID: obs.SensorID, ObservationID: obs.ID}
	}
	if err != nil {
		return nil, "", err
	}
	if sensor.Payload == nil || sensor.Payload.Sensor == nil {
		return nil, "", fmt.Errorf("sensor %s has no sensor section", sensor.ID)
	}
	target, err := TargetFor(sensor.Payload.Sensor.DataType)
	if err != nil {
		return nil, "", err
	}
	return sensor, target, nil
}

func (e *Engine) cached(sensorID string) (SinkTarget, bool) {
	if item := e.cache.Get(sensorID); item != nil {
		metrics.ClassificationCacheHits.Inc()
		return item.Value(), true
	}
	return "", false
}
