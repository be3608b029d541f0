// Command faxctl runs one-shot intake operations against the configured stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/app"
	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/logging"
)

var (
	configPath string
	logLevel   string
	version    = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration errors and 1 for everything else.
func exitCode(err error) int {
	if common.IsCode(err, "CONFIG_ERROR") {
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "faxctl",
	Short: "Operate the fax intake pipeline",
	Long: `faxctl runs intake operations against the stores named in the faxintake config.

Configuration comes from --config (YAML) overlaid with FAXINTAKE_* environment
variables, e.g. FAXINTAKE_DATABASE_DSN or FAXINTAKE_ANALYSIS_MODEL_ID.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FAXINTAKE_CONFIG"), "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level")
}

// env is what every subcommand needs to talk to the stores.
type env struct {
	cfg    *common.Config
	logger *zap.Logger
	store  *app.Store
}

func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	_ = e.logger.Sync()
}

func loadConfig() (*common.Config, *zap.Logger, error) {
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openStore loads config and connects only the record store.
func openStore(ctx context.Context) (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return &env{cfg: cfg, logger: logger, store: store}, nil
}
