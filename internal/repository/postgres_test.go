package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
)

// setupPostgres starts a throwaway Postgres, migrates it and returns a pool.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("faxintake_test"),
		postgres.WithUsername("faxintake"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := zap.NewNop()
	require.NoError(t, Migrate(dsn, logger))

	pool, err := Open(ctx, Config{DSN: dsn, DialTimeout: 10 * time.Second}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgres_Lifecycle(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	repo := NewPostgresRepository(pool, zap.NewNop(), WithClock(func() time.Time { return fixedNow }))

	id, err := repo.Create(ctx, "fax1/fax1.pdf", "fax1.pdf", fixedNow.Add(-time.Hour))
	require.NoError(t, err)

	_, err = repo.Create(ctx, "fax1/fax1.pdf", "fax1.pdf", fixedNow)
	assert.ErrorIs(t, err, ErrConflict)

	exists, err := repo.ExistsBySourcePath(ctx, "fax1/fax1.pdf")
	require.NoError(t, err)
	assert.True(t, exists)

	stale, err := repo.ListStale(ctx, fixedNow.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	fields := sampleFields()
	require.NoError(t, repo.Complete(ctx, id, fields))
	assert.ErrorIs(t, repo.MarkFailed(ctx, id, "late"), ErrTerminal)

	rec, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, rec.Status)
	require.NotNil(t, rec.ExtractedFields)
	assert.Equal(t, fields, *rec.ExtractedFields)
	assert.Nil(t, rec.ErrorMessage)

	_, err = repo.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, NewReadinessChecker("postgres", pool).CheckReady(ctx))
}
