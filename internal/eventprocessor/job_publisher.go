// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package eventprocessor

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tidemark/internal/dispatch"
	"github.com/tomtom215/tidemark/internal/logging"
)

// JobPublisher puts dispatcher jobs on the bus behind a circuit breaker.
// It implements dispatch.Publisher.
type JobPublisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// NewJobPublisher wraps pub. A nil breaker publishes unguarded.
func NewJobPublisher(pub message.Publisher, breaker *gobreaker.CircuitBreaker[struct{}]) *JobPublisher {
	return &JobPublisher{publisher: pub, breaker: breaker}
}

// PublishJob encodes job and publishes it on its process topic.
func (p *JobPublisher) PublishJob(ctx context.Context, job *dispatch.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic, err := TopicFor(job.ProcessKind)
	if err != nil {
		return err
	}
	msg, err := EncodeJob(job)
	if err != nil {
		return err
	}
	msg.SetContext(ctx)

	if p.breaker != nil {
		_, err = p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, p.publisher.Publish(topic, msg)
		})
	} else {
		err = p.publisher.Publish(topic, msg)
	}
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.Key, err)
	}

	logging.Debug().Str("job_key", job.Key.String()).Str("topic", topic).Msg("Job published")
	return nil
}

// State reports the breaker state, or "disabled".
func (p *JobPublisher) State() string {
	if p.breaker == nil {
		return "disabled"
	}
	return CircuitBreakerState(p.breaker)
}
