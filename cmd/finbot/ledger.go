package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/spf13/cobra"
)

func ledgerCmd() *cobra.Command {
	var limit int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show the ingestion ledger",
		Long: `List the most recent processing attempts, newest first. Every attempt
is kept, including failures and forced reprocessing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListLedgerEntries(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list ledger: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No documents processed yet."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, header("PROCESSED", "FILE", "BANK", "STATUS", "TXNS", "HASH"))
			for _, e := range entries {
				status := cli.FormatStatus(string(e.Status))
				if e.Forced {
					status += cli.SubtleStyle.Render(" (forced)")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.ProcessedAt.Local().Format("2006-01-02 15:04"),
					truncate(filepath.Base(e.FilePath), 36),
					e.Bank,
					status,
					e.TransactionsCreated,
					e.FileHash[:min(12, len(e.FileHash))])
			}
			_ = w.Flush()

			if verbose {
				for _, e := range entries {
					if e.ErrorDetail != "" {
						fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("  %s: %s", filepath.Base(e.FilePath), e.ErrorDetail)))
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Number of entries (0 for all)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show error details")

	return cmd
}
