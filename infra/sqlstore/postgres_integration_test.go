package sqlstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/gridready/core/readiness"
	"github.com/kilianp07/gridready/core/readiness/readinesstest"
)

// TestPostgresIntegration runs the store suite against a real PostgreSQL.
func TestPostgresIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "gridready",
			"POSTGRES_PASSWORD": "gridready",
			"POSTGRES_DB":       "gridready",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://gridready:gridready@%s:%s/gridready?sslmode=disable", host, port.Port())

	readinesstest.RunStoreTests(t, func(t *testing.T) readiness.Store {
		s, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn, MaxOpenConns: 8})
		require.NoError(t, err)
		_, err = s.db.ExecContext(ctx, `TRUNCATE readiness_records, trigger_events`)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
