package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/faxintake/internal/app"
	"github.com/joseph-ayodele/faxintake/internal/intake"
)

var follow bool

func init() {
	processCmd.Flags().BoolVar(&follow, "follow", true, "process the organized copy right after an unorganized file is moved")
	rootCmd.AddCommand(processCmd)
}

var processCmd = &cobra.Command{
	Use:   "process <path>",
	Short: "Run one intake invocation for a storage path",
	Long: `Run the intake pipeline once for a path in the configured storage container.

Examples:
  # Organize fax1.pdf into fax1/fax1.pdf, then extract it
  faxctl process fax1.pdf

  # Only extract an already organized file
  faxctl process fax1/fax1.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := cfg.Validate(); err != nil {
		return err
	}

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

	orch, err := app.NewOrchestrator(cfg, blob, store.Repo, logger)
	if err != nil {
		return err
	}

	path := args[0]
	for {
		out := orch.Handle(ctx, intake.Event{
			Path:       path,
			Open:       intake.SourceOpener(blob, path),
			ReceivedAt: time.Now(),
		})
		fmt.Fprintln(cmd.OutOrStdout(), out.String())

		switch {
		case out.Kind == intake.Organized && follow:
			path = out.Destination
		case out.Kind == intake.Failed:
			return fmt.Errorf("intake failed: %s", out.Reason)
		default:
			return nil
		}
	}
}
