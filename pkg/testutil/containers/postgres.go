//go:build integration

package containers

import (
	"context"
	"testing"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Postgres is a throwaway PostgreSQL instance for integration tests.
type Postgres struct {
	URL string
}

// StartPostgres launches a PostgreSQL container and waits until it accepts
// connections. The container is cleaned up when the test finishes.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("credence_test"),
		tcpostgres.WithUsername("credence"),
		tcpostgres.WithPassword("credence"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return &Postgres{URL: url}
}
