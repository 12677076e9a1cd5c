// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package eventprocessor is the job bus between the process dispatcher and
derived-data workers.

It is built on Watermill. The default backend is an in-process gochannel
pub/sub, suitable for a single node and for tests. Building with the nats
tag adds a NATS backend (watermill-nats over nats.go):

	go build -tags nats ./cmd/server

Topics:

	jobs.averaging   dispatch.Job for averaging processes
	jobs.inference   dispatch.Job for inference processes
	jobs.results     dispatch.JobResult reported by workers
	jobs.results.poison   results that could not be processed

JobPublisher implements dispatch.Publisher behind a circuit breaker, so a
down bus fails fast and the dispatcher's redispatcher retries later.
ResultsConsumer runs a Watermill router that feeds worker results into
dispatch.Dispatcher.Complete. Both messages are JSON (goccy/go-json).
*/
package eventprocessor
