// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	correlationIDKey
	observationKey
	jobKey
)

type observationRef struct {
	sensorID      string
	observationID string
}

// GenerateCorrelationID returns a short id for following one request
// through the logs.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string {
	return uuid.New().String()
}

// ContextWithCorrelationID attaches a correlation id to ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithRequestID attaches an HTTP request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithObservation marks ctx as handling one observation of one
// sensor. Job scheduling triggered by the delivery inherits it.
func ContextWithObservation(ctx context.Context, sensorID, observationID string) context.Context {
	return context.WithValue(ctx, observationKey, observationRef{sensorID: sensorID, observationID: observationID})
}

// ContextWithJob marks ctx as handling the job with the given key.
func ContextWithJob(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, jobKey, key)
}

// Ctx returns the global logger enriched with every identifier found in
// ctx.
//
//	logging.Ctx(ctx).Info().Str("sink", "timeseries").Msg("Delivered")
func Ctx(ctx context.Context) *zerolog.Logger {
	logCtx := with()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if ref, ok := ctx.Value(observationKey).(observationRef); ok {
		logCtx = logCtx.Str("sensor_id", ref.sensorID).Str("observation_id", ref.observationID)
	}
	if key, ok := ctx.Value(jobKey).(string); ok {
		logCtx = logCtx.Str("job_key", key)
	}
	l := logCtx.Logger()
	return &l
}
