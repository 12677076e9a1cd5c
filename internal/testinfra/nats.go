// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultNATSImage is the official NATS server image.
	DefaultNATSImage = "nats:2.10-alpine"

	natsClientPort = "4222/tcp"
)

// NATSContainer is a running NATS server with core messaging only.
type NATSContainer struct {
	testcontainers.Container
	URL string
}

// NewNATSContainer starts a NATS server. The container is terminated when
// t finishes.
func NewNATSContainer(ctx context.Context, t *testing.T) (*NATSContainer, error) {
	t.Helper()
	SkipIfNoDocker(t)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        DefaultNATSImage,
			ExposedPorts: []string{natsClientPort},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(natsClientPort),
				wait.ForLog("Server is ready"),
			).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if container != nil {
		CleanupContainer(t, container)
	}
	if err != nil {
		return nil, fmt.Errorf("start nats container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats host: %w", err)
	}
	port, err := container.MappedPort(ctx, natsClientPort)
	if err != nil {
		return nil, fmt.Errorf("nats port: %w", err)
	}
	return &NATSContainer{Container: container, URL: fmt.Sprintf("nats://%s:%s", host, port.Port())}, nil
}
