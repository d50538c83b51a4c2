package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/config"
	"github.com/norkodev/finbot/internal/engine"
	"github.com/norkodev/finbot/internal/llm"
	"github.com/norkodev/finbot/internal/rules"
	"github.com/norkodev/finbot/internal/storage"
	"github.com/spf13/viper"
)

// loadConfig builds the typed configuration from viper.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.ExpandPath(cfg.DatabasePath))
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// classifierHandle owns the AI client when one is configured.
type classifierHandle struct {
	batch *llm.BatchClassifier
}

func (h *classifierHandle) Close() {
	if h.batch == nil {
		return
	}
	if err := h.batch.Close(); err != nil {
		slog.Warn("Failed to close classifier", "error", err)
	}
}

// buildEngine wires the classification tiers from configuration. The AI
// tier is left out when disabled or when skipAI is set.
func buildEngine(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, opts engine.Options) (*engine.ClassificationEngine, *rules.Set, *classifierHandle, error) {
	set, err := rules.Load(cfg.Classification.RulesFile)
	if err != nil {
		return nil, nil, nil, common.NewUserError("could not load classification rules", err)
	}

	handle := &classifierHandle{}
	var classifier engine.Classifier
	if cfg.LLM.Enabled && !opts.SkipAI {
		batch, err := llm.NewClassifier(ctx, llm.ConfigFrom(cfg.LLM), set.Vocabulary, nil)
		if err != nil {
			// Rules and merchant memory still work without the AI tier.
			slog.Warn("AI classification unavailable", "provider", cfg.LLM.Provider, "error", err)
		} else {
			handle.batch = batch
			classifier = batch
		}
	}

	return engine.New(store, set.Matcher(), classifier, opts, nil), set, handle, nil
}

// parseMonth turns YYYY-MM into a half-open date range.
func parseMonth(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, common.NewUserError(fmt.Sprintf("invalid month %q, expected YYYY-MM", month), err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// confirm asks a yes/no question and defaults to no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/N) ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

// header renders bold table column titles joined by tabs.
func header(columns ...string) string {
	rendered := make([]string, len(columns))
	for i, c := range columns {
		rendered[i] = cli.BoldStyle.Render(c)
	}
	return strings.Join(rendered, "\t")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
