package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func totalsCmd() *cobra.Command {
	var month string

	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Spending per category for a month",
		Long: `Sum charges per category. Payments, reversed charges and duplicates
are left out.`,
		Example: `  finbot totals --month 2025-12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if month == "" {
				month = time.Now().Format("2006-01")
			}
			start, end, err := parseMonth(month)
			if err != nil {
				return err
			}

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

			totals, err := store.CategoryTotals(ctx, start, end)
			if err != nil {
				return fmt.Errorf("failed to compute totals: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(totals) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No spending recorded for "+month))
				return nil
			}

			categories := make([]string, 0, len(totals))
			grand := decimal.Zero
			for name, summary := range totals {
				categories = append(categories, name)
				grand = grand.Add(summary.Amount)
			}
			sort.Slice(categories, func(i, j int) bool {
				return totals[categories[i]].Amount.GreaterThan(totals[categories[j]].Amount)
			})

			fmt.Fprintln(out, cli.FormatTitle("Spending "+month))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, header("CATEGORY", "TXNS", "AMOUNT", "SHARE"))
			for _, name := range categories {
				summary := totals[name]
				share := decimal.Zero
				if !grand.IsZero() {
					share = summary.Amount.Div(grand).Mul(decimal.NewFromInt(100))
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s%%\n",
					name, summary.Count, cli.FormatAmount(summary.Amount), share.StringFixed(1))
			}
			fmt.Fprintf(w, "%s\t\t%s\t\n", cli.BoldStyle.Render("TOTAL"), cli.FormatAmount(grand))
			_ = w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "Month to report (YYYY-MM, default: current)")

	return cmd
}
