package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestClient creates a test database client with CI/local environment detection.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
	} else {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	client, err := NewClientFromDSN(ctx, connStr, "test")
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("failed to close client: %v", err)
		}
	})

	return client
}

func TestNewClientAppliesMigrations(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.DB().PingContext(ctx))

	for _, table := range []string{"stream_metadata", "video_metadata", "audio_metadata", "score_metadata"} {
		var n int
		err := client.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
		require.NoError(t, err, "table %s should exist after migrations", table)
		assert.Zero(t, n)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	client := newTestClient(t)

	// a second pass over an up-to-date schema is ErrNoChange, not a failure
	require.NoError(t, runMigrations(client.DB(), "test"))
}
