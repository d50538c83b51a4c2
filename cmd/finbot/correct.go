package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/correction"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/rules"
	"github.com/spf13/cobra"
)

func correctCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correct <transaction-id> <category> [subcategory]",
		Short: "Set a transaction's category by hand",
		Long: `Record a manual category for one transaction. The merchant behind it is
remembered, so later transactions from the same merchant resolve to the
same category without rules or AI.`,
		Example: `  finbot correct 3f2a9c1e alimentacion restaurantes`,
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subcategory := ""
			if len(args) == 3 {
				subcategory = args[2]
			}
			return runCorrect(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], subcategory)
		},
	}
}

func runCorrect(ctx context.Context, out io.Writer, id, category, subcategory string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := rules.Load(cfg.Classification.RulesFile)
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txn, err := correction.NewService(store, set.Vocabulary, nil).Correct(ctx, id, category, subcategory)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s → %s", txn.Description, categoryLabel(txn))))
	return nil
}

func reviewCmd() *cobra.Command {
	var threshold float64
	var limit int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List low-confidence and unclassified transactions",
		Long: `Show automatic classifications below the review threshold, then the
transactions no tier could resolve. Fix them with 'finbot correct'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReview(cmd.Context(), cmd.OutOrStdout(), threshold, limit)
		},
	}

	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "Confidence below which to review (default: classification.review_threshold)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum rows per section")

	return cmd
}

func runReview(ctx context.Context, out io.Writer, threshold float64, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if threshold == 0 {
		threshold = cfg.Classification.ReviewThreshold
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := correction.NewService(store, nil, nil)
	queue, err := svc.ReviewQueue(ctx, threshold, limit)
	if err != nil {
		return err
	}
	pending, err := svc.Unclassified(ctx, limit)
	if err != nil {
		return err
	}

	if len(queue) == 0 && len(pending) == 0 {
		fmt.Fprintln(out, cli.FormatSuccess("Nothing to review"))
		return nil
	}

	if len(queue) > 0 {
		fmt.Fprintln(out, cli.TitleStyle.Render(fmt.Sprintf("Low confidence (< %.2f)", threshold)))
		printTransactions(out, queue, threshold)
		fmt.Fprintln(out)
	}
	if len(pending) > 0 {
		fmt.Fprintln(out, cli.TitleStyle.Render("Unclassified"))
		printTransactions(out, pending, threshold)
	}
	return nil
}

func printTransactions(out io.Writer, txns []*model.Transaction, threshold float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header("ID", "DATE", "DESCRIPTION", "AMOUNT", "CATEGORY", "CONFIDENCE"))
	for _, t := range txns {
		confidence := "-"
		if t.Status() == model.StatusResolved {
			confidence = cli.FormatConfidence(t.Classification.Confidence, threshold)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID,
			t.Date.Format("2006-01-02"),
			truncate(t.Description, 40),
			cli.FormatAmount(t.Amount),
			categoryLabel(t),
			confidence)
	}
	_ = w.Flush()
}

func categoryLabel(t *model.Transaction) string {
	switch {
	case t.Category == "":
		return cli.SubtleStyle.Render("unclassified")
	case t.Subcategory == "":
		return t.Category
	default:
		return t.Category + "/" + t.Subcategory
	}
}
