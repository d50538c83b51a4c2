package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/engine"
	"github.com/norkodev/finbot/internal/pipeline"
	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	var force bool
	var skipAI bool
	var workers int

	cmd := &cobra.Command{
		Use:   "process <path|gs://bucket/prefix>",
		Short: "Ingest bank statements",
		Long: `Extract, deduplicate and classify every statement under a file, a
directory or a Cloud Storage prefix.

Documents already in the ingestion ledger are skipped unless --force is
given. Forced runs take an automatic checkpoint first.`,
		Example: `  # Process a folder of PDF statements
  finbot process ~/Documents/estados

  # Reprocess one statement after an extractor fix
  finbot process ~/Documents/estados/hsbc_dic.pdf --force

  # Read statements from Cloud Storage
  finbot process gs://my-bucket/statements/2025`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd.Context(), cmd.OutOrStdout(), args[0], force, skipAI, workers)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reprocess documents already in the ledger")
	cmd.Flags().BoolVar(&skipAI, "skip-llm", false, "Classify with merchant memory and rules only")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Documents processed in parallel (default: ingest.workers)")

	return cmd
}

func runProcess(ctx context.Context, out io.Writer, location string, force, skipAI bool, workers int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.Ingest.Workers
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if force {
		if manager, err := store.NewCheckpointManager(); err == nil {
			if info, err := manager.AutoCheckpoint(ctx, "process"); err != nil {
				slog.Warn("Failed to create checkpoint before forced processing", "error", err)
			} else {
				slog.Info("Created checkpoint", "id", info.ID)
			}
		}
	}

	opts := engine.OptionsFrom(cfg)
	opts.SkipAI = opts.SkipAI || skipAI
	eng, _, classifier, err := buildEngine(ctx, cfg, store, opts)
	if err != nil {
		return err
	}
	defer classifier.Close()

	src, err := document.NewSource(ctx, location, cfg.Ingest.Extensions)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", location, err)
	}
	if closer, ok := src.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	listed := &listedSource{Source: src}
	refs, err := listed.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(refs) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No statements found in "+location))
		return nil
	}

	interrupts := cli.NewInterruptHandler(out, "Documents already processed are saved. Run the same command again to continue.")
	ctx = interrupts.HandleInterrupts(ctx)
	defer interrupts.Stop()

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Processing %d statements", len(refs))))
	progress := cli.NewProgress(os.Stderr, len(refs), "Processing statements...")

	summary, err := pipeline.New(store, nil, eng, nil).Run(ctx, listed, pipeline.Options{
		Workers:    workers,
		Force:      force,
		OnDocument: func(pipeline.Outcome) { progress.Step() },
	})
	if summary != nil {
		progress.Finish()
		printOutcomes(out, summary)
	}
	if err != nil {
		if interrupts.WasInterrupted() {
			return nil
		}
		return err
	}
	return nil
}

// listedSource lists once so the caller can size the progress bar before
// the pipeline runs.
type listedSource struct {
	document.Source
	refs   []document.Ref
	listed bool
}

func (s *listedSource) List(ctx context.Context) ([]document.Ref, error) {
	if s.listed {
		return s.refs, nil
	}
	refs, err := s.Source.List(ctx)
	if err != nil {
		return nil, err
	}
	s.refs, s.listed = refs, true
	return refs, nil
}

func printOutcomes(out io.Writer, summary *pipeline.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header("FILE", "BANK", "STATUS", "TXNS", "CLASSIFIED", "DUPS", "REVERSALS"))
	for _, o := range summary.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			truncate(filepath.Base(o.Path), 40),
			o.Bank,
			cli.FormatStatus(string(o.Status)),
			o.Transactions,
			o.Classified,
			o.Duplicates,
			o.Reversals)
	}
	_ = w.Flush()

	for _, o := range summary.Outcomes {
		if o.Err != nil && o.Status != pipeline.StatusSkipped {
			fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("  %s: %v", filepath.Base(o.Path), o.Err)))
		}
	}

	c := summary.Classification
	body := fmt.Sprintf("Documents: %d processed, %d partial, %d skipped, %d failed, %d conflicts\n",
		summary.Processed, summary.Partial, summary.Skipped, summary.Failed, summary.Conflicts) +
		fmt.Sprintf("Transactions: %d\n", summary.Transactions) +
		fmt.Sprintf("Classified: %d (merchants %d, cache %d, rules %d, AI %d)\n",
			c.Classified(), c.ByMerchant, c.ByCache, c.ByRules, c.ByLLM) +
		fmt.Sprintf("Unclassified: %d\n", c.Unclassified) +
		fmt.Sprintf("Merchants learned: %d", c.MerchantsLearned)
	if c.AIUnavailable {
		body += "\n" + cli.FormatWarning("AI classification was unavailable; run `finbot classify` later")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, cli.RenderBox(cli.ChartIcon+" Summary", body))
}
