// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/tidemark/internal/api"
	"github.com/tomtom215/tidemark/internal/catalog"
	"github.com/tomtom215/tidemark/internal/config"
	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/eventprocessor"
	"github.com/tomtom215/tidemark/internal/logging"
	"github.com/tomtom215/tidemark/internal/revision"
	"github.com/tomtom215/tidemark/internal/routing"
	"github.com/tomtom215/tidemark/internal/sink"
	"github.com/tomtom215/tidemark/internal/supervisor"
	"github.com/tomtom215/tidemark/internal/supervisor/services"
)

// app owns every long-lived component. Components are created in
// dependency order and closed in reverse.
type app struct {
	cfg *config.Config

	store     *revision.Store
	catalog   *catalog.Catalog
	sinks     *sink.Set
	jobs      *dispatch.Dispatcher
	bus       *eventprocessor.Bus
	publisher *eventprocessor.JobPublisher
	engine    *routing.Engine
	handler   http.Handler

	busConfig eventprocessor.Config
	closers   []func() error
}

// newApp builds the component graph. On error everything opened so far
// is closed again.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			if closeErr := a.Close(); closeErr != nil {
				logging.Error().Err(closeErr).Msg("Cleanup after failed startup")
			}
			a = nil
		}
	}()

	storeCfg := revision.DefaultConfig()
	storeCfg.Path = cfg.Store.Path
	storeCfg.InMemory = cfg.Store.InMemory
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	a.store, err = revision.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open revision store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)
	logging.Info().Str("path", cfg.Store.Path).Bool("in_memory", cfg.Store.InMemory).Msg("Revision store opened")

	catCfg := catalog.DefaultConfig()
	catCfg.MaxUpdateAttempts = cfg.Catalog.MaxUpdateAttempts
	if cfg.Catalog.DefaultAuthor != "" {
		catCfg.DefaultAuthor = cfg.Catalog.DefaultAuthor
	}
	a.catalog = catalog.New(a.store, catCfg)

	a.sinks, err = sink.Open(ctx, sinkConfig(cfg.Sinks))
	if err != nil {
		return nil, fmt.Errorf("open sinks: %w", err)
	}
	a.closers = append(a.closers, a.sinks.Close)

	a.jobs = dispatch.New(a.store.DB(), a.catalog, dispatch.Config{
		MaxTxnAttempts:     cfg.Dispatch.MaxTxnAttempts,
		RedispatchInterval: cfg.Dispatch.RedispatchInterval,
	})

	a.busConfig = busConfig(cfg)
	a.bus, err = eventprocessor.NewBus(a.busConfig)
	if err != nil {
		return nil, fmt.Errorf("open job bus: %w", err)
	}
	a.closers = append(a.closers, a.bus.Close)
	a.publisher = eventprocessor.NewJobPublisher(a.bus.Publisher(), eventprocessor.NewCircuitBreaker(a.busConfig.CircuitBreaker))
	a.jobs.SetPublisher(a.publisher)

	a.engine = routing.New(a.catalog, a.sinks, routing.Config{
		ClassificationCacheTTL: cfg.Routing.ClassificationCacheTTL,
		MaxClassifyAttempts:    cfg.Routing.MaxClassifyAttempts,
	}, routing.WithListener(a.jobs))
	a.closers = append(a.closers, func() error {
		a.engine.Stop()
		return nil
	})

	h := api.NewHandler(a.catalog, a.engine, a.jobs)
	h.AddReadinessCheck("store", a.store.Ping)
	h.AddReadinessCheck("job_bus", a.busReady)
	a.handler = api.NewRouter(h, routerConfig(cfg.Server))
	return a, nil
}

func (a *app) busReady(context.Context) error {
	if a.bus.Closed() {
		return errors.New("job bus closed")
	}
	return nil
}

// addServices registers the supervised background services and the HTTP
// server on tree.
func (a *app) addServices(tree *supervisor.SupervisorTree, server services.HTTPServer) {
	if a.cfg.Store.GCInterval > 0 {
		tree.AddDataService(services.NewStoreGCService(a.store, a.cfg.Store.GCInterval, a.cfg.Store.GCRatio))
	}
	tree.AddDataService(dispatch.NewRedispatcher(a.jobs))
	tree.AddMessagingService(eventprocessor.NewResultsConsumer(a.bus, a.jobs, a.busConfig.Router))
	tree.AddAPIService(services.NewHTTPServerService(server, a.cfg.Server.Timeout))
}

// Close releases components in reverse creation order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func sinkConfig(c config.SinksConfig) sink.Config {
	cfg := sink.DefaultConfig()
	cfg.Backend = c.Backend
	cfg.DuckDBPath = c.DuckDBPath
	cfg.Postgres = sink.PostgresConfig{
		DSN:             c.Postgres.DSN,
		MaxConns:        c.Postgres.MaxConns,
		MinConns:        c.Postgres.MinConns,
		MaxConnLifetime: c.Postgres.MaxConnLifetime,
		MaxConnIdleTime: c.Postgres.MaxConnIdleTime,
		ConnectTimeout:  c.Postgres.ConnectTimeout,
	}
	cfg.Breaker.Enabled = c.Breaker.Enabled
	cfg.Breaker.FailureThreshold = c.Breaker.FailureThreshold
	cfg.Breaker.Timeout = c.Breaker.Timeout
	cfg.Breaker.MaxRequests = c.Breaker.MaxRequests
	return cfg
}

func busConfig(cfg *config.Config) eventprocessor.Config {
	bus := eventprocessor.DefaultConfig()
	bus.Backend = cfg.Dispatch.Bus
	bus.NATS.URL = cfg.NATS.URL
	bus.NATS.MaxReconnects = cfg.NATS.MaxReconnects
	bus.NATS.ReconnectWait = cfg.NATS.ReconnectWait
	bus.NATS.QueueGroup = cfg.NATS.QueueGroup
	bus.NATS.SubscribersCount = cfg.NATS.SubscribersCount
	return bus
}

func routerConfig(s config.ServerConfig) api.RouterConfig {
	return api.RouterConfig{
		CORSOrigins:       s.CORSOrigins,
		RateLimitRequests: s.RateLimitReqs,
		RateLimitWindow:   s.RateLimitWindow,
		RateLimitDisabled: s.RateLimitDisabled,
		IngestRate:        s.IngestRate,
		IngestBurst:       s.IngestBurst,
	}
}
