// Package app assembles the intake pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/analysis"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/extract"
	"github.com/joseph-ayodele/faxintake/internal/intake"
	"github.com/joseph-ayodele/faxintake/internal/lock"
	"github.com/joseph-ayodele/faxintake/internal/organize"
	"github.com/joseph-ayodele/faxintake/internal/repository"
	"github.com/joseph-ayodele/faxintake/internal/storage"
	"github.com/joseph-ayodele/faxintake/internal/storage/gcs"
	"github.com/joseph-ayodele/faxintake/internal/storage/local"
	"github.com/joseph-ayodele/faxintake/internal/storage/s3blob"
)

// PingFunc adapts a probe function to repository.Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Store is the configured record store and its readiness probe.
type Store struct {
	Repo  repository.AuthorizationRepository
	Ready *repository.ReadinessChecker
	close func()
}

func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStore connects the record store named by cfg.Database.Driver.
func OpenStore(ctx context.Context, cfg *common.Config, logger *zap.Logger) (*Store, error) {
	db := cfg.Database
	switch db.Driver {
	case common.StoreDriverPostgres:
		if db.AutoMigrate {
			if err := repository.Migrate(db.DSN, logger); err != nil {
				return nil, err
			}
		}
		pool, err := repository.Open(ctx, repository.Config{
			DSN:              db.DSN,
			MaxConns:         db.MaxConns,
			MinConns:         db.MinConns,
			MaxConnLifetime:  db.MaxConnLifetime,
			MaxConnIdleTime:  db.MaxConnIdleTime,
			DialTimeout:      db.DialTimeout,
			StatementTimeout: db.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repo:  repository.NewPostgresRepository(pool, logger),
			Ready: repository.NewReadinessChecker("postgres", pool),
			close: func() { repository.Close(pool, logger) },
		}, nil

	case common.StoreDriverSQLite:
		sdb, err := repository.OpenSQLite(ctx, db.DSN)
		if err != nil {
			return nil, err
		}
		return &Store{
			Repo:  repository.NewSQLiteRepository(sdb, logger),
			Ready: repository.NewReadinessChecker("sqlite", PingFunc(sdb.PingContext)),
			close: func() { _ = sdb.Close() },
		}, nil

	case common.StoreDriverDynamo:
		awsConf, _, err := LoadAWSConfig(ctx, db.Region)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsConf)
		table := db.Table
		ping := func(ctx context.Context) error {
			_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
			return err
		}
		return &Store{
			Repo:  repository.NewDynamoRepository(client, table, logger),
			Ready: repository.NewReadinessChecker("dynamodb", PingFunc(ping)),
		}, nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown database driver "+db.Driver, common.ErrInvalidInput)
}

// Blob is the configured storage container. Local is set only for the local driver.
type Blob struct {
	storage.Blob
	Local  *local.Store
	Bucket string
	close  func()
}

func (b *Blob) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBlob connects the storage container named by cfg.Storage.Driver.
func OpenBlob(ctx context.Context, cfg *common.Config, logger *zap.Logger) (*Blob, error) {
	st := cfg.Storage
	switch st.Driver {
	case common.BlobDriverLocal:
		ls, err := local.New(st.Root, logger)
		if err != nil {
			return nil, err
		}
		return &Blob{Blob: ls, Local: ls}, nil

	case common.BlobDriverGCS:
		client, err := gcs.NewClient(ctx, st.CredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return &Blob{
			Blob:   gcs.New(client, st.Bucket, logger),
			Bucket: st.Bucket,
			close:  func() { _ = client.Close() },
		}, nil

	case common.BlobDriverS3:
		awsConf, endpoint, err := LoadAWSConfig(ctx, st.Region)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
			if endpoint != "" {
				o.UsePathStyle = true
			}
		})
		return &Blob{Blob: s3blob.New(client, st.Bucket, logger), Bucket: st.Bucket}, nil
	}
	return nil, common.NewAppError("CONFIG_ERROR", "unknown storage driver "+st.Driver, common.ErrInvalidInput)
}

// Guard is the path guard; Ready is nil for the in-process guard.
type Guard struct {
	intake.PathGuard
	Ready *repository.ReadinessChecker
	close func()
}

func (g *Guard) Close() {
	if g.close != nil {
		g.close()
	}
}

// OpenGuard returns a Redis guard when cfg.Redis.Addr is set, otherwise an in-process one.
func OpenGuard(cfg *common.Config, logger *zap.Logger) *Guard {
	rc := cfg.Redis
	if rc.Addr == "" {
		return &Guard{PathGuard: lock.NewLocalGuard()}
	}
	rdb := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	return &Guard{
		PathGuard: lock.NewRedisGuard(rdb, rc.LockPrefix, rc.LockTTL, logger),
		Ready: repository.NewReadinessChecker("redis", PingFunc(func(ctx context.Context) error {
			return lock.Ping(ctx, rdb)
		})),
		close: func() { _ = rdb.Close() },
	}
}

// NewOrchestrator wires organizer, analysis client and store into one intake orchestrator.
func NewOrchestrator(cfg *common.Config, blob storage.Blob, repo repository.AuthorizationRepository, logger *zap.Logger, opts ...intake.Option) (*intake.Orchestrator, error) {
	org := organize.New(blob,
		organize.WithPollInterval(cfg.Intake.CopyPollInterval),
		organize.WithCopyTimeout(cfg.Intake.CopyTimeout),
		organize.WithLogger(logger))

	client, err := analysis.NewClient(analysis.Config{
		Endpoint:          cfg.Analysis.Endpoint,
		APIKey:            cfg.Analysis.APIKey,
		APIVersion:        cfg.Analysis.APIVersion,
		PollInterval:      cfg.Analysis.PollInterval,
		Timeout:           cfg.Analysis.Timeout,
		RequestsPerSecond: cfg.Analysis.RequestsPerSecond,
		Burst:             cfg.Analysis.Burst,
	}, nil, logger)
	if err != nil {
		return nil, err
	}

	opts = append([]intake.Option{intake.WithLogger(logger)}, opts...)
	return intake.New(org, extract.NewAdapter(client, logger), repo, cfg.Analysis.ModelID, opts...), nil
}
