// Package testutil starts shared backing-service containers for
// integration tests. Tests are skipped when no container runtime is
// available.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Give generous timeouts in CI environments.
const startTimeout = 3 * time.Minute

type shared struct {
	once     sync.Once
	endpoint string
	err      error
}

var (
	redisC    shared
	postgresC shared
)

// get starts the container once per test binary and skips t when it
// cannot be started.
func (s *shared) get(t *testing.T, start func(ctx context.Context) (testcontainers.Container, error), format func(endpoint string) string) string {
	t.Helper()
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		c, err := start(ctx)
		if err != nil {
			s.err = err
			return
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			_ = c.Terminate(context.Background())
			s.err = err
			return
		}
		s.endpoint = format(endpoint)
	})
	if s.err != nil {
		t.Skipf("container unavailable: %v", s.err)
	}
	return s.endpoint
}

// RedisAddress returns host:port of a Redis server.
func RedisAddress(t *testing.T) string {
	return redisC.get(t, func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
	}, func(endpoint string) string { return endpoint })
}

// PostgresDSN returns a connection string for an empty PostgreSQL database.
func PostgresDSN(t *testing.T) string {
	return postgresC.get(t, func(ctx context.Context) (testcontainers.Container, error) {
		return testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					// Postgres logs readiness once for the init server and once
					// for the real one.
					wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "flowexec",
				"POSTGRES_PASSWORD": "flowexec",
				"POSTGRES_DB":       "flowexec_test",
			}),
		)
	}, func(endpoint string) string {
		return fmt.Sprintf("postgres://flowexec:flowexec@%s/flowexec_test?sslmode=disable", endpoint)
	})
}
