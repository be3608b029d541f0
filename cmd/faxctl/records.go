package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/export"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

var (
	listStatus string
	listLimit  int
	listOffset int
	exportOut  string
)

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (processing, completed, failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", repository.DefaultListLimit, "max records")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "records to skip")

	exportCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "authorizations.xlsx", "output file")

	rootCmd.AddCommand(showCmd, listCmd, exportCmd)
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one authorization record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		rec, err := e.store.Repo.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List authorization records, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := parseStatus(listStatus)
		if err != nil {
			return err
		}
		e, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		recs, err := e.store.Repo.List(cmd.Context(), repository.ListFilter{Status: status, Limit: listLimit, Offset: listOffset})
		if err != nil {
			return err
		}
		return writeRecords(cmd.OutOrStdout(), recs)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write authorization records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := parseStatus(listStatus)
		if err != nil {
			return err
		}
		e, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		b, err := export.NewService(e.store.Repo, e.logger).AuthorizationsXLSX(cmd.Context(), status)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", exportOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(b))
		return nil
	},
}

func parseStatus(s string) (constants.AuthorizationStatus, error) {
	status := constants.AuthorizationStatus(s)
	if status != "" && !status.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

func writeRecords(w io.Writer, recs []*entity.AuthorizationRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSOURCE\tUPLOADED\tPROCESSED\tERROR")
	for _, r := range recs {
		processed := "-"
		if r.ProcessedAt != nil {
			processed = r.ProcessedAt.UTC().Format(time.RFC3339)
		}
		errMsg := "-"
		if r.ErrorMessage != nil {
			errMsg = *r.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.SourcePath, r.UploadedAt.UTC().Format(time.RFC3339), processed, errMsg)
	}
	return tw.Flush()
}
