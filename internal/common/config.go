package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before mapping them onto config keys.
const EnvPrefix = "FAXINTAKE_"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverDynamo   = "dynamodb"

	BlobDriverLocal = "local"
	BlobDriverGCS   = "gcs"
	BlobDriverS3    = "s3"

	TriggerWatch  = "watch"
	TriggerPubSub = "pubsub"
	TriggerNone   = "none"
)

// Config holds all application configuration
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Storage  StorageConfig  `koanf:"storage"`
	Analysis AnalysisConfig `koanf:"analysis"`
	Intake   IntakeConfig   `koanf:"intake"`
	Server   ServerConfig   `koanf:"server"`
	Redis    RedisConfig    `koanf:"redis"`
	Trigger  TriggerConfig  `koanf:"trigger"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// DatabaseConfig describes the record store.
type DatabaseConfig struct {
	Driver           string        `koanf:"driver"`
	DSN              string        `koanf:"dsn"`
	Table            string        `koanf:"table"`
	Region           string        `koanf:"region"`
	AutoMigrate      bool          `koanf:"auto_migrate"`
	MaxConns         int32         `koanf:"max_conns"`
	MinConns         int32         `koanf:"min_conns"`
	MaxConnLifetime  time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `koanf:"max_conn_idle_time"`
	DialTimeout      time.Duration `koanf:"dial_timeout"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
}

// StorageConfig describes the blob container faxes are uploaded to.
type StorageConfig struct {
	Driver          string `koanf:"driver"`
	Root            string `koanf:"root"`
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	CredentialsJSON string `koanf:"credentials_json"`
}

type AnalysisConfig struct {
	Endpoint          string        `koanf:"endpoint"`
	APIKey            string        `koanf:"api_key"`
	APIVersion        string        `koanf:"api_version"`
	ModelID           string        `koanf:"model_id"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

type IntakeConfig struct {
	Workers          int           `koanf:"workers"`
	QueueSize        int           `koanf:"queue_size"`
	ProcessTimeout   time.Duration `koanf:"process_timeout"`
	CopyPollInterval time.Duration `koanf:"copy_poll_interval"`
	CopyTimeout      time.Duration `koanf:"copy_timeout"`
	Debounce         time.Duration `koanf:"debounce"`
}

type ServerConfig struct {
	HTTPAddr        string        `koanf:"http_addr"`
	GRPCAddr        string        `koanf:"grpc_addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// RedisConfig enables the distributed path guard when Addr is set.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
	LockPrefix string        `koanf:"lock_prefix"`
}

type TriggerConfig struct {
	Kind         string `koanf:"kind"`
	ProjectID    string `koanf:"project_id"`
	Subscription string `koanf:"subscription"`
}

// LoadConfig reads the optional YAML file at path, then overlays FAXINTAKE_* environment variables.
// FAXINTAKE_ANALYSIS_MODEL_ID maps to analysis.model_id.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode config", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// envKey maps FAXINTAKE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func applyDefaults(c *Config) {
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "json")

	setDefault(&c.Database.Driver, StoreDriverPostgres)
	setDefault(&c.Database.Table, "authorizations")
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 20
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 2
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = 30 * time.Minute
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = 5 * time.Minute
	}
	if c.Database.DialTimeout == 0 {
		c.Database.DialTimeout = 3 * time.Second
	}

	setDefault(&c.Storage.Driver, BlobDriverLocal)

	if c.Intake.Workers == 0 {
		c.Intake.Workers = 4
	}
	if c.Intake.QueueSize == 0 {
		c.Intake.QueueSize = 256
	}
	if c.Intake.ProcessTimeout == 0 {
		c.Intake.ProcessTimeout = 5 * time.Minute
	}
	if c.Intake.CopyPollInterval == 0 {
		c.Intake.CopyPollInterval = 100 * time.Millisecond
	}
	if c.Intake.CopyTimeout == 0 {
		c.Intake.CopyTimeout = 2 * time.Minute
	}
	if c.Intake.Debounce == 0 {
		c.Intake.Debounce = 750 * time.Millisecond
	}

	setDefault(&c.Server.HTTPAddr, ":8080")
	setDefault(&c.Server.GRPCAddr, ":9090")
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	setDefault(&c.Redis.LockPrefix, "faxintake:path:")
	setDefault(&c.Trigger.Kind, TriggerWatch)
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// Validate fails fast on missing required settings.
func (c *Config) Validate() error {
	v := NewValidator()

	v.Field("storage.driver", c.Storage.Driver, OneOf(BlobDriverLocal, BlobDriverGCS, BlobDriverS3))
	switch c.Storage.Driver {
	case BlobDriverLocal:
		v.Field("storage.root", c.Storage.Root, Required)
	case BlobDriverGCS, BlobDriverS3:
		v.Field("storage.bucket", c.Storage.Bucket, Required)
	}

	v.Field("analysis.endpoint", c.Analysis.Endpoint, Required)
	v.Field("analysis.api_key", c.Analysis.APIKey, Required)
	v.Field("analysis.model_id", c.Analysis.ModelID, Required)

	c.validateStore(v)

	v.Field("trigger.kind", c.Trigger.Kind, OneOf(TriggerWatch, TriggerPubSub, TriggerNone))
	if c.Trigger.Kind == TriggerPubSub {
		v.Field("trigger.project_id", c.Trigger.ProjectID, Required)
		v.Field("trigger.subscription", c.Trigger.Subscription, Required)
	}

	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// ValidateStore checks only what the record store needs; used by operator commands.
func (c *Config) ValidateStore() error {
	v := NewValidator()
	c.validateStore(v)
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

func (c *Config) validateStore(v *Validator) {
	v.Field("database.driver", c.Database.Driver, OneOf(StoreDriverPostgres, StoreDriverSQLite, StoreDriverDynamo))
	// DynamoDB caps table names at 255 characters
	v.Field("database.table", c.Database.Table, Required, MaxLength(255))
	if c.Database.Driver != StoreDriverDynamo {
		v.Field("database.dsn", c.Database.DSN, Required)
	}
}
