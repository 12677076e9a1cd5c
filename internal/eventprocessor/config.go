// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/tomtom215/tidemark/internal/models"
)

// Bus backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Topics.
const (
	TopicAveraging     = "jobs.averaging"
	TopicInference     = "jobs.inference"
	TopicResults       = "jobs.results"
	TopicResultsPoison = "jobs.results.poison"
)

// TopicFor returns the topic a job of kind is published on.
func TopicFor(kind models.ProcessKind) (string, error) {
	switch kind {
	case models.ProcessAveraging:
		return TopicAveraging, nil
	case models.ProcessInference:
		return TopicInference, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownProcessKind, kind)
	}
}

// NATSConfig configures the NATS backend.
type NATSConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	CloseTimeout     time.Duration
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // allowed in half-open state
	Interval         time.Duration // reset interval for counts
	Timeout          time.Duration // time to stay open
	FailureThreshold uint32        // consecutive failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// RouterConfig tunes the results consumer.
type RouterConfig struct {
	CloseTimeout         time.Duration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64
	PoisonQueueTopic     string
}

// DefaultRouterConfig returns production defaults for the results router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     TopicResultsPoison,
	}
}

// Config configures the bus.
type Config struct {
	Backend string
	// OutputBuffer is the per-subscriber buffer of the memory backend.
	OutputBuffer   int64
	NATS           NATSConfig
	CircuitBreaker CircuitBreakerConfig
	Router         RouterConfig
}

// DefaultConfig returns an in-memory bus.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendMemory,
		OutputBuffer: 256,
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			QueueGroup:       "tidemark",
			SubscribersCount: 4,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     30 * time.Second,
		},
		CircuitBreaker: DefaultCircuitBreakerConfig("job-bus"),
		Router:         DefaultRouterConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: nats url is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown bus backend %q", ErrInvalidConfig, c.Backend)
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("%w: circuit breaker failure threshold must be positive", ErrInvalidConfig)
	}
	return nil
}
