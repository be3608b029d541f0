package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedSQLite(t *testing.T) (string, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "faxctl.db")
	t.Setenv("FAXINTAKE_DATABASE_DRIVER", "sqlite")
	t.Setenv("FAXINTAKE_DATABASE_DSN", dsn)
	configPath = ""

	db, err := repository.OpenSQLite(context.Background(), dsn)
	require.NoError(t, err)
	defer db.Close()
	repo := repository.NewSQLiteRepository(db, zap.NewNop())
	id, err := repo.Create(context.Background(), "fax9/fax9.pdf", "fax9.pdf", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	return dsn, id
}

func TestReconcileThenList(t *testing.T) {
	_, id := seedSQLite(t)

	out, err := run(t, "reconcile", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "stale=1 marked=1 errors=0")

	out, err = run(t, "list", "--status", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "reconciled: processing timed out")

	out, err = run(t, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "failed"`)
}

func TestDBHealth(t *testing.T) {
	seedSQLite(t)
	out, err := run(t, "dbhealth")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite health: OK")
}

func TestMigrateRejectsNonPostgres(t *testing.T) {
	seedSQLite(t)
	_, err := run(t, "migrate")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	s, err := parseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, constants.StatusCompleted, s)
	_, err = parseStatus("done")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(common.NewAppError("CONFIG_ERROR", "database.dsn is required", common.ErrInvalidInput)))
	assert.Equal(t, 2, exitCode(fmt.Errorf("open: %w", common.NewAppError("CONFIG_ERROR", "bad", nil))))
	assert.Equal(t, 1, exitCode(errors.New("connection refused")))
}
