package main

import (
	"context"
	"fmt"
	"io"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/engine"
	"github.com/norkodev/finbot/internal/service"
	"github.com/spf13/cobra"
)

type classifyFlags struct {
	month            string
	all              bool
	force            bool
	skipAI           bool
	noCache          bool
	unclassifiedOnly bool
}

func classifyCmd() *cobra.Command {
	var flags classifyFlags

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify stored transactions",
		Long: `Run the classification tiers over transactions already in the database.

By default only unclassified transactions are considered. --force also
re-resolves automatic categories; manual corrections are never changed.`,
		Example: `  # Classify anything still pending
  finbot classify

  # Re-run every tier for one month
  finbot classify --month 2025-11 --force

  # Rules and merchant memory only
  finbot classify --skip-llm`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClassify(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.month, "month", "m", "", "Only transactions in this month (YYYY-MM)")
	cmd.Flags().BoolVar(&flags.all, "all", false, "Consider every transaction, not only unclassified ones")
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Re-resolve automatically classified transactions")
	cmd.Flags().BoolVar(&flags.skipAI, "skip-llm", false, "Do not call the AI tier")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "Ignore the classification cache")
	cmd.Flags().BoolVar(&flags.unclassifiedOnly, "unclassified-only", true, "Only transactions without a category")

	return cmd
}

// classifyFilter selects the transactions a classify run loads.
func classifyFilter(flags classifyFlags) (service.TransactionFilter, error) {
	var filter service.TransactionFilter
	if flags.month != "" {
		start, end, err := parseMonth(flags.month)
		if err != nil {
			return filter, err
		}
		filter.StartDate, filter.EndDate = &start, &end
	}
	filter.UnclassifiedOnly = flags.unclassifiedOnly && !flags.all && !flags.force
	return filter, nil
}

func runClassify(ctx context.Context, out io.Writer, flags classifyFlags) error {
	filter, err := classifyFilter(flags)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	opts := engine.OptionsFrom(cfg)
	opts.Force = flags.force
	opts.SkipAI = opts.SkipAI || flags.skipAI
	opts.UseCache = !flags.noCache

	eng, _, classifier, err := buildEngine(ctx, cfg, store, opts)
	if err != nil {
		return err
	}
	defer classifier.Close()

	summary, err := eng.ClassifyStored(ctx, filter)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if summary.Total == 0 {
		fmt.Fprintln(out, cli.FormatInfo("Nothing to classify"))
		return nil
	}

	body := fmt.Sprintf("Considered: %d (skipped %d)\n", summary.Total, summary.Skipped) +
		fmt.Sprintf("Merchant memory: %d\n", summary.ByMerchant) +
		fmt.Sprintf("Cache: %d\n", summary.ByCache) +
		fmt.Sprintf("Rules: %d\n", summary.ByRules) +
		fmt.Sprintf("AI: %d\n", summary.ByLLM) +
		fmt.Sprintf("Unclassified: %d\n", summary.Unclassified) +
		fmt.Sprintf("Saved: %d, merchants learned: %d", summary.Persisted, summary.MerchantsLearned)
	if summary.FailedBatches > 0 {
		body += "\n" + cli.FormatWarning(fmt.Sprintf("%d AI batches failed", summary.FailedBatches))
	}
	if summary.AIUnavailable {
		body += "\n" + cli.FormatWarning("AI classification was unavailable")
	}
	fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" Classification", body))
	return nil
}
