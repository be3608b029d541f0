package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/faxintake/internal/common"
	"github.com/joseph-ayodele/faxintake/internal/intake"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

var olderThan time.Duration

func init() {
	reconcileCmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "age after which a processing record counts as stuck")
	rootCmd.AddCommand(reconcileCmd, migrateCmd, dbhealthCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark records stuck in processing as failed",
	Long: `Mark every record that has been processing for longer than --older-than as failed,
with the message "` + intake.ReconcileMessage + `".

Examples:
  faxctl reconcile --older-than 30m`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		e, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		res, err := intake.Reconcile(cmd.Context(), e.store.Repo, time.Now().Add(-olderThan), e.logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stale=%d marked=%d errors=%d\n", res.Found, res.Marked, res.Failed)
		if res.Failed > 0 {
			return fmt.Errorf("%d records could not be marked", res.Failed)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		if cfg.Database.Driver != common.StoreDriverPostgres {
			return fmt.Errorf("migrate applies to the postgres driver, not %q", cfg.Database.Driver)
		}
		if err := cfg.ValidateStore(); err != nil {
			return err
		}
		if err := repository.Migrate(cfg.Database.DSN, logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check that the record store is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if err := e.store.Ready.CheckReady(cmd.Context()); err != nil {
			return fmt.Errorf("%s health: FAIL (%w)", e.store.Ready.Name(), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s health: OK\n", e.store.Ready.Name())
		return nil
	},
}
