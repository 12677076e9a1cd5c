// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/tidemark/internal/logging"
)

// Bus is a publisher and subscriber pair on one backend.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	backend    string

	mu     sync.Mutex
	closed bool
}

// NewBus opens the configured backend. Watermill logs through zerolog.
func NewBus(cfg Config) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())

	switch cfg.Backend {
	case BackendNATS:
		pub, sub, err := newNATSPubSub(cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		logging.Info().Str("url", cfg.NATS.URL).Msg("Job bus connected to NATS")
		return &Bus{publisher: pub, subscriber: sub, logger: logger, backend: BackendNATS}, nil
	default:
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, logger)
		logging.Info().Msg("Job bus running in memory")
		return &Bus{publisher: ch, subscriber: ch, logger: logger, backend: BackendMemory}, nil
	}
}

// Publisher returns the underlying Watermill publisher.
func (b *Bus) Publisher() message.Publisher { return b.publisher }

// Subscriber returns the underlying Watermill subscriber.
func (b *Bus) Subscriber() message.Subscriber { return b.subscriber }

// Logger returns the Watermill logger adapter.
func (b *Bus) Logger() watermill.LoggerAdapter { return b.logger }

// Backend names the active backend.
func (b *Bus) Backend() string { return b.backend }

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close shuts down both sides. The memory backend shares one object for
// both and is closed once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	err := b.publisher.Close()
	if s, ok := b.subscriber.(message.Publisher); !ok || s != b.publisher {
		err = errors.Join(err, b.subscriber.Close())
	}
	return err
}
