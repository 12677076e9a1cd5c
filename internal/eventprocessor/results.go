// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/models"
)

// Completer records job outcomes.
type Completer interface {
	Complete(ctx context.Context, res dispatch.JobResult) (*dispatch.Job, error)
}

// ResultsConsumer reads worker results and records them on the dispatcher.
// It runs as a supervised service; each Serve call builds a fresh router.
type ResultsConsumer struct {
	sub       message.Subscriber
	poisonPub message.Publisher
	completer Completer
	cfg       RouterConfig
	logger    watermill.LoggerAdapter

	mu    sync.Mutex
	ready chan struct{}
}

// NewResultsConsumer creates a consumer. poisonPub may be nil to disable
// the poison queue.
func NewResultsConsumer(bus *Bus, completer Completer, cfg RouterConfig) *ResultsConsumer {
	return &ResultsConsumer{
		sub:       bus.Subscriber(),
		poisonPub: bus.Publisher(),
		completer: completer,
		cfg:       cfg,
		logger:    bus.Logger(),
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the router of the current run is consuming.
func (c *ResultsConsumer) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Serve implements suture.Service.
func (c *ResultsConsumer) Serve(ctx context.Context) error {
	router, err := c.newRouter()
	if err != nil {
		return err
	}
	router.AddConsumerHandler("job-results", TopicResults, c.sub, c.handle)

	c.mu.Lock()
	ready := make(chan struct{})
	c.ready = ready
	c.mu.Unlock()

	go func() {
		select {
		case <-router.Running():
			close(ready)
		case <-ctx.Done():
		}
	}()

	logging.Info().Str("topic", TopicResults).Msg("Job results consumer started")
	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("results router: %w", err)
	}
	return ctx.Err()
}

func (c *ResultsConsumer) newRouter() (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: c.cfg.CloseTimeout}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	// Outermost first: poison catches what survives retries.
	if c.poisonPub != nil && c.cfg.PoisonQueueTopic != "" {
		poison, err := middleware.PoisonQueue(c.poisonPub, c.cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		router.AddMiddleware(poison)
	}
	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      c.cfg.RetryMaxRetries,
		InitialInterval: c.cfg.RetryInitialInterval,
		MaxInterval:     c.cfg.RetryMaxInterval,
		Multiplier:      c.cfg.RetryMultiplier,
		Logger:          c.logger,
	}
	router.AddMiddleware(retry.Middleware)
	return router, nil
}

func (c *ResultsConsumer) handle(msg *message.Message) error {
	res, err := DecodeResult(msg)
	if err != nil {
		// Malformed results never succeed; skip retries.
		logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping malformed job result")
		return nil
	}

	ctx := logging.ContextWithJob(msg.Context(), res.Key.String())
	job, err := c.completer.Complete(ctx, res)
	var nf *models.NotFoundError
	switch {
	case errors.Is(err, dispatch.ErrJobAlreadyCompleted):
		logging.Ctx(ctx).Warn().Msg("Duplicate job result ignored")
		return nil
	case errors.As(err, &nf):
		logging.Ctx(ctx).Warn().Msg("Result for unknown job ignored")
		return nil
	case err != nil:
		return err
	}

	logging.Ctx(ctx).Debug().Str("state", string(job.State)).Msg("Job result applied")
	return nil
}

// String implements fmt.Stringer for suture logging.
func (c *ResultsConsumer) String() string {
	return "job-results-consumer"
}
