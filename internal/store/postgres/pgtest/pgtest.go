// Package pgtest provides a PostgreSQL DSN to integration tests.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DSN returns ELIGO_POSTGRES_DSN when set. Otherwise, with
// ELIGO_TESTCONTAINERS=1, it starts a throwaway postgres container for the
// test. With neither, the test is skipped.
func DSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("ELIGO_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if os.Getenv("ELIGO_TESTCONTAINERS") != "1" {
		t.Skip("ELIGO_POSTGRES_DSN not set and ELIGO_TESTCONTAINERS!=1; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "eligo",
			"POSTGRES_PASSWORD": "eligo",
			"POSTGRES_DB":       "eligo",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return fmt.Sprintf("postgres://eligo:eligo@%s:%s/eligo?sslmode=disable", host, port.Port())
}
