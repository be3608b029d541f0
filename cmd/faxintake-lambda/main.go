// Command faxintake-lambda handles S3 ObjectCreated notifications with a DynamoDB record store.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/app"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/intake"
	"github.com/joseph-ayodele/faxintake/internal/logging"
	"github.com/joseph-ayodele/faxintake/internal/trigger"
)

type invoker interface {
	Handle(ctx context.Context, ev intake.Event) intake.Outcome
}

// App holds the clients reused across warm invocations.
type App struct {
	orch   invoker
	blob   intake.ContentSource
	logger *zap.Logger
}

func main() {
	cfg, err := common.LoadConfig(os.Getenv("FAXINTAKE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// S3 and DynamoDB unless configured otherwise
	if cfg.Storage.Driver == common.BlobDriverLocal {
		cfg.Storage.Driver = common.BlobDriverS3
	}
	if cfg.Database.Driver == common.StoreDriverPostgres && cfg.Database.DSN == "" {
		cfg.Database.Driver = common.StoreDriverDynamo
	}

	logger, err := logging.New(cfg.Log.Level, "json")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config.invalid", zap.Error(err))
	}

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store.open.failed", zap.Error(err))
	}
	blob, err := app.OpenBlob(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("blob.open.failed", zap.Error(err))
	}
	guard := app.OpenGuard(cfg, logger)
	orch, err := app.NewOrchestrator(cfg, blob, store.Repo, logger, intake.WithPathGuard(guard))
	if err != nil {
		logger.Fatal("orchestrator.init.failed", zap.Error(err))
	}

	a := &App{orch: orch, blob: blob, logger: logger}
	lambda.Start(a.handler)
}

// handler runs every record; outcomes are settled state, so the batch never reports failure.
func (a *App) handler(ctx context.Context, ev events.S3Event) (map[string]int, error) {
	counts := map[string]int{}
	for _, iev := range trigger.S3Events(ev, a.blob) {
		out := a.orch.Handle(ctx, iev)
		counts[out.Kind.String()]++
		a.logger.Info("lambda.record.done", zap.String("path", iev.Path), zap.Stringer("outcome", out))
	}
	return counts, nil
}
