// Command faxintaked watches a storage container and runs every new fax through intake.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/joseph-ayodele/faxintake/internal/app"
	"github.com/joseph-ayodele/faxintake/internal/async"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/export"
	"github.com/joseph-ayodele/faxintake/internal/intake"
	"github.com/joseph-ayodele/faxintake/internal/logging"
	"github.com/joseph-ayodele/faxintake/internal/metrics"
	"github.com/joseph-ayodele/faxintake/internal/server"
	"github.com/joseph-ayodele/faxintake/internal/trigger"
)

func main() {
	configPath := flag.String("config", os.Getenv("FAXINTAKE_CONFIG"), "path to config YAML")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", zap.Error(err))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("faxintaked.exit", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("faxintaked.stopped")
}

func run(ctx context.Context, cfg *common.Config, logger *zap.Logger) error {
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	blob, err := app.OpenBlob(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer blob.Close()

	guard := app.OpenGuard(cfg, logger)
	defer guard.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	orch, err := app.NewOrchestrator(cfg, blob, store.Repo, logger,
		intake.WithPathGuard(guard),
		intake.WithRecorder(m))
	if err != nil {
		return err
	}

	queue := async.New(orch, logger,
		async.WithWorkers(cfg.Intake.Workers),
		async.WithQueueSize(cfg.Intake.QueueSize),
		async.WithProcessTimeout(cfg.Intake.ProcessTimeout))

	checkers := []server.ReadinessChecker{store.Ready}
	if guard.Ready != nil {
		checkers = append(checkers, guard.Ready)
	}
	handler := server.NewHandler(store.Repo, export.NewService(store.Repo, logger), reg, logger, checkers...)
	gs, hs := server.NewGRPCServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Server.HTTPAddr, handler.Router(m.Middleware), cfg.Server.GRPCAddr, gs, cfg.Server.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		server.WatchReadiness(gctx, hs, 15*time.Second, logger, checkers...)
		return nil
	})
	g.Go(func() error {
		return runTrigger(gctx, cfg, blob, queue, logger)
	})

	err = g.Wait()

	// drain in-flight invocations before closing the stores
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	queue.Shutdown(sctx)
	return err
}

func runTrigger(ctx context.Context, cfg *common.Config, blob *app.Blob, queue *async.Queue, logger *zap.Logger) error {
	switch cfg.Trigger.Kind {
	case common.TriggerWatch:
		if blob.Local == nil {
			return errors.New("trigger kind watch requires the local storage driver")
		}
		w := trigger.NewWatcher(blob.Local, trigger.WatchConfig{Debounce: cfg.Intake.Debounce, InitialScan: true}, logger)
		return w.Run(ctx, func(ctx context.Context, ev intake.Event) {
			if err := queue.Enqueue(ctx, async.Job{Event: ev, SubmittedAt: ev.ReceivedAt}); err != nil && ctx.Err() == nil {
				logger.Warn("trigger.enqueue.failed", zap.String("path", ev.Path), zap.Error(err))
			}
		})

	case common.TriggerPubSub:
		var opts []option.ClientOption
		if cfg.Storage.CredentialsJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Storage.CredentialsJSON)))
		}
		client, err := pubsub.NewClient(ctx, cfg.Trigger.ProjectID, opts...)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		defer func() { _ = client.Close() }()
		src := trigger.NewPubSubSource(client.Subscription(cfg.Trigger.Subscription), blob.Bucket, blob, cfg.Intake.Workers, logger)
		return src.Run(ctx, queue.Run)

	default:
		logger.Info("trigger.disabled")
		<-ctx.Done()
		return nil
	}
}
