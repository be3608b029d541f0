package common

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "faxintake.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, StoreDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "authorizations", cfg.Database.Table)
	assert.Equal(t, BlobDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Intake.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.Intake.CopyPollInterval)
	assert.Equal(t, TriggerWatch, cfg.Trigger.Kind)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	p := writeConfig(t, `
storage:
  driver: local
  root: /srv/faxes
analysis:
  endpoint: https://analysis.example.com
  api_key: from-file
  model_id: prior-auth-v1
  poll_interval: 2s
database:
  driver: sqlite
  dsn: /tmp/fax.db
`)
	t.Setenv("FAXINTAKE_ANALYSIS_API_KEY", "from-env")
	t.Setenv("FAXINTAKE_INTAKE_WORKERS", "9")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "/srv/faxes", cfg.Storage.Root)
	assert.Equal(t, "from-env", cfg.Analysis.APIKey)
	assert.Equal(t, "prior-auth-v1", cfg.Analysis.ModelID)
	assert.Equal(t, 2*time.Second, cfg.Analysis.PollInterval)
	assert.Equal(t, 9, cfg.Intake.Workers)
	assert.Equal(t, StoreDriverSQLite, cfg.Database.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, IsCode(err, "CONFIG_ERROR"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "analysis.model_id", envKey("FAXINTAKE_ANALYSIS_MODEL_ID"))
	assert.Equal(t, "redis.addr", envKey("FAXINTAKE_REDIS_ADDR"))
	assert.Equal(t, "debug", envKey("FAXINTAKE_DEBUG"))
}

func TestValidate_FailsFast(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsCode(err, "CONFIG_ERROR"))
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Contains(t, err.Error(), "analysis.model_id")
	assert.Contains(t, err.Error(), "storage.root")
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestValidate_PubSubNeedsSubscription(t *testing.T) {
	cfg := &Config{
		Storage:  StorageConfig{Driver: BlobDriverGCS, Bucket: "faxes"},
		Analysis: AnalysisConfig{Endpoint: "https://a", APIKey: "k", ModelID: "m"},
		Database: DatabaseConfig{Driver: StoreDriverDynamo},
		Trigger:  TriggerConfig{Kind: TriggerPubSub},
	}
	applyDefaults(cfg)

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger.subscription")
	assert.NotContains(t, err.Error(), "database.dsn")

	cfg.Trigger.ProjectID = "proj"
	cfg.Trigger.Subscription = "fax-finalize"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := &Config{
		Storage:  StorageConfig{Driver: "ftp"},
		Analysis: AnalysisConfig{Endpoint: "https://a", APIKey: "k", ModelID: "m"},
		Database: DatabaseConfig{DSN: "postgres://x"},
	}
	applyDefaults(cfg)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of local, gcs, s3")
}

func TestValidateStore(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.Error(t, cfg.ValidateStore())
	cfg.Database.DSN = "postgres://localhost/fax"
	assert.NoError(t, cfg.ValidateStore())
}

func TestValidateStore_TableNameLength(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Driver: StoreDriverDynamo, Table: strings.Repeat("a", 256)}}
	applyDefaults(cfg)
	err := cfg.ValidateStore()
	require.Error(t, err)
	assert.True(t, IsCode(err, "CONFIG_ERROR"))
	assert.Contains(t, err.Error(), "'database.table'")
	assert.Contains(t, err.Error(), "must be at most 255 characters")

	cfg.Database.Table = "fax-authorizations"
	assert.NoError(t, cfg.ValidateStore())
}
