// Package engine implements the three-tier classification engine: merchant
// memory, pattern rules and the AI fallback, with cache-and-learn.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/config"
	"github.com/norkodev/finbot/internal/llm"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/norkodev/finbot/internal/service"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Options configures a classification run.
type Options struct {
	BatchSize      int
	Workers        int
	RuleConfidence float64
	BatchTimeout   time.Duration
	// UseCache consults the classification cache between merchant memory
	// and rules.
	UseCache bool
	// Force re-resolves transactions that already have an automatic
	// category. Manual corrections are never touched.
	Force  bool
	SkipAI bool
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		BatchSize:      config.MaxBatchSize,
		Workers:        2,
		RuleConfidence: 0.9,
		BatchTimeout:   30 * time.Second,
		UseCache:       true,
	}
}

// OptionsFrom builds engine options from the application configuration.
func OptionsFrom(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.BatchSize = cfg.LLM.BatchSize
	opts.Workers = cfg.LLM.Workers
	opts.BatchTimeout = cfg.LLM.Timeout
	opts.RuleConfidence = cfg.Classification.RuleConfidence
	opts.SkipAI = !cfg.LLM.Enabled
	return opts
}

// Summary counts what a run resolved and through which tier.
type Summary struct {
	Total            int
	Skipped          int
	ByMerchant       int
	ByCache          int
	ByRules          int
	ByLLM            int
	Unclassified     int
	FailedBatches    int
	MerchantsLearned int
	Persisted        int
	AIUnavailable    bool
}

// Classified is the number of transactions resolved in the run.
func (s Summary) Classified() int {
	return s.ByMerchant + s.ByCache + s.ByRules + s.ByLLM
}

// Add folds other into s.
func (s *Summary) Add(other Summary) {
	s.Total += other.Total
	s.Skipped += other.Skipped
	s.ByMerchant += other.ByMerchant
	s.ByCache += other.ByCache
	s.ByRules += other.ByRules
	s.ByLLM += other.ByLLM
	s.Unclassified += other.Unclassified
	s.FailedBatches += other.FailedBatches
	s.MerchantsLearned += other.MerchantsLearned
	s.Persisted += other.Persisted
	s.AIUnavailable = s.AIUnavailable || other.AIUnavailable
}

// ClassificationEngine resolves transactions tier by tier. The tier order is
// fixed: merchant memory, cache, rules, AI. Options.Workers bounds the AI
// batches in flight across every concurrent call on the engine.
type ClassificationEngine struct {
	store         Store
	matcher       RuleMatcher
	classifier    Classifier
	logger        *slog.Logger
	aiSlots       *semaphore.Weighted
	opts          Options
	aiUnavailable atomic.Bool
}

// New creates a classification engine. A nil classifier disables the AI tier.
func New(store Store, matcher RuleMatcher, classifier Classifier, opts Options, logger *slog.Logger) *ClassificationEngine {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 || opts.BatchSize > config.MaxBatchSize {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.RuleConfidence <= 0 || opts.RuleConfidence > 1 {
		opts.RuleConfidence = defaults.RuleConfidence
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaults.BatchTimeout
	}

	return &ClassificationEngine{
		store:      store,
		matcher:    matcher,
		classifier: classifier,
		logger:     common.LoggerOrDefault(logger),
		aiSlots:    semaphore.NewWeighted(int64(opts.Workers)),
		opts:       opts,
	}
}

// AIUnavailable reports whether the AI tier has been switched off for the
// rest of this engine's lifetime after the service was found unreachable.
func (e *ClassificationEngine) AIUnavailable() bool {
	return e.aiUnavailable.Load()
}

// Classify resolves transactions in memory. It returns an error only when
// storage fails or ctx is canceled; AI failures leave rows unclassified.
func (e *ClassificationEngine) Classify(ctx context.Context, txns []*model.Transaction) (Summary, error) {
	summary, _, err := e.classify(ctx, txns, nil)
	return summary, err
}

// ClassifyForIngestion resolves transactions like Classify but writes no
// merchant memory or cache rows. What it learns is returned instead, to be
// committed with the transactions, so a statement that is never stored
// teaches nothing. Rows sharing a learned merchant resolve through it
// within the call.
func (e *ClassificationEngine) ClassifyForIngestion(ctx context.Context, txns []*model.Transaction) (Summary, []*service.Learning, error) {
	memory := newPendingMemory()
	summary, _, err := e.classify(ctx, txns, memory)
	return summary, memory.learned, err
}

// ClassifyStored loads transactions matching filter, classifies them and
// persists the new classifications.
func (e *ClassificationEngine) ClassifyStored(ctx context.Context, filter service.TransactionFilter) (Summary, error) {
	filter.ExcludeManual = true

	txns, err := e.store.GetTransactions(ctx, filter)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		e.logger.Info("No transactions to classify")
		return Summary{}, nil
	}

	summary, changed, err := e.classify(ctx, txns, nil)
	if err != nil {
		return summary, err
	}
	if len(changed) == 0 {
		return summary, nil
	}

	n, err := e.store.UpdateClassifications(ctx, changed)
	if err != nil {
		return summary, fmt.Errorf("failed to save classifications: %w", err)
	}
	summary.Persisted = n
	return summary, nil
}

// classify runs the tiers. With a nil memory, learned merchants and cache
// entries are written to the store immediately.
func (e *ClassificationEngine) classify(ctx context.Context, txns []*model.Transaction, memory *pendingMemory) (Summary, []*model.Transaction, error) {
	summary := Summary{Total: len(txns)}

	var pending []*model.Transaction
	for _, txn := range txns {
		if txn.IsManual() || (txn.Status() == model.StatusResolved && !e.opts.Force) {
			summary.Skipped++
			continue
		}
		pending = append(pending, txn)
	}

	var changed, unresolved []*model.Transaction
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return summary, changed, err
		}

		resolved, err := e.resolveLocally(ctx, txn, &summary, memory)
		if err != nil {
			return summary, changed, err
		}
		if resolved {
			changed = append(changed, txn)
			continue
		}
		unresolved = append(unresolved, txn)
	}

	aiResolved, err := e.resolveWithAI(ctx, unresolved, &summary)
	if err != nil {
		return summary, changed, err
	}
	for _, txn := range aiResolved {
		if e.learn(ctx, txn, memory) {
			summary.MerchantsLearned++
		}
		changed = append(changed, txn)
	}

	for _, txn := range pending {
		if txn.Status() == model.StatusUnclassified {
			summary.Unclassified++
		}
	}
	summary.AIUnavailable = e.AIUnavailable()

	e.logger.Info("Classification finished",
		"total", summary.Total,
		"merchant_history", summary.ByMerchant,
		"cache", summary.ByCache,
		"rules", summary.ByRules,
		"llm", summary.ByLLM,
		"unclassified", summary.Unclassified,
		"failed_batches", summary.FailedBatches)

	return summary, changed, nil
}

// resolveLocally runs the merchant, cache and rule tiers for one
// transaction.
func (e *ClassificationEngine) resolveLocally(ctx context.Context, txn *model.Transaction, summary *Summary, memory *pendingMemory) (bool, error) {
	desc := txn.NormalizedDescription
	if desc == "" {
		desc = normalize.Description(txn.Description)
		txn.NormalizedDescription = desc
	}
	key := normalize.MerchantKey(txn.Description)
	if key == "" && desc == "" {
		return false, nil
	}

	if learning, ok := memory.recall(key, desc); ok {
		txn.Resolve(learning.Merchant.Category, learning.Merchant.Subcategory, model.SourceMerchantHistory, 1.0)
		learning.Transactions = append(learning.Transactions, txn)
		summary.ByMerchant++
		return true, nil
	}

	merchant, err := e.store.FindMerchant(ctx, key, desc)
	switch {
	case err == nil:
		txn.Resolve(merchant.Category, merchant.Subcategory, model.SourceMerchantHistory, 1.0)
		txn.MerchantID = merchant.ID
		summary.ByMerchant++
		return true, nil
	case !errors.Is(err, common.ErrNotFound):
		return false, fmt.Errorf("merchant lookup failed: %w", err)
	}

	if e.opts.UseCache && desc != "" {
		entry, err := e.store.GetCachedClassification(ctx, desc)
		switch {
		case err == nil:
			txn.Resolve(entry.Category, entry.Subcategory, entry.Source, entry.Confidence)
			summary.ByCache++
			return true, nil
		case !errors.Is(err, common.ErrNotFound):
			return false, fmt.Errorf("classification cache lookup failed: %w", err)
		}
	}

	if e.matcher != nil {
		if rule, ok := e.matcher.Match(desc, txn.Amount); ok {
			txn.Resolve(rule.Category, rule.Subcategory, model.SourceRules, e.opts.RuleConfidence)
			summary.ByRules++
			if e.learn(ctx, txn, memory) {
				summary.MerchantsLearned++
			}
			return true, nil
		}
	}
	return false, nil
}

// learn records the merchant and cache entry for an automatic resolution,
// in memory when one is given and in the store otherwise. Store failures
// are logged; the classification itself stands.
func (e *ClassificationEngine) learn(ctx context.Context, txn *model.Transaction, memory *pendingMemory) bool {
	key := normalize.MerchantKey(txn.Description)
	if key == "" {
		key = txn.NormalizedDescription
	}
	if key == "" {
		return false
	}

	merchant := &model.Merchant{
		Name:           key,
		NormalizedName: key,
		Category:       txn.Category,
		Subcategory:    txn.Subcategory,
		Source:         model.MerchantSourceAuto,
	}
	merchant.AddAlias(txn.NormalizedDescription)

	var entry *model.ClassificationCacheEntry
	if e.opts.UseCache && txn.NormalizedDescription != "" {
		entry = &model.ClassificationCacheEntry{
			NormalizedDescription: txn.NormalizedDescription,
			Category:              txn.Category,
			Subcategory:           txn.Subcategory,
			Source:                txn.Classification.Source,
			Confidence:            txn.Classification.Confidence,
		}
	}

	if memory != nil {
		return memory.remember(txn, merchant, entry)
	}

	created, err := e.store.LearnMerchant(ctx, merchant)
	if err != nil {
		e.logger.Warn("Failed to learn merchant", "merchant", key, "error", err)
		return false
	}
	txn.MerchantID = merchant.ID

	if entry != nil {
		if err := e.store.SaveCachedClassification(ctx, entry); err != nil {
			e.logger.Warn("Failed to cache classification", "description", txn.NormalizedDescription, "error", err)
		}
	}
	return created
}

// resolveWithAI sends unresolved transactions to the AI tier, one item per
// distinct description, in concurrent bounded batches. Failed batches leave
// their rows unclassified.
func (e *ClassificationEngine) resolveWithAI(ctx context.Context, txns []*model.Transaction, summary *Summary) ([]*model.Transaction, error) {
	if len(txns) == 0 || e.classifier == nil || e.opts.SkipAI || e.AIUnavailable() {
		return nil, nil
	}

	groups := groupByDescription(txns)
	items := make([]llm.Item, 0, len(groups))
	members := make(map[string][]*model.Transaction, len(groups))
	for _, group := range groups {
		first := group[0]
		items = append(items, llm.Item{ID: first.ID, Description: first.NormalizedDescription, Amount: first.Amount})
		members[first.ID] = group
	}

	var (
		mu       sync.Mutex
		resolved []*model.Transaction
		failed   atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for start := 0; start < len(items); start += e.opts.BatchSize {
		batch := items[start:min(start+e.opts.BatchSize, len(items))]
		g.Go(func() error {
			if e.AIUnavailable() || gctx.Err() != nil {
				return nil
			}
			if err := e.aiSlots.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer e.aiSlots.Release(1)
			if e.AIUnavailable() {
				return nil
			}

			bctx, cancel := context.WithTimeout(gctx, e.opts.BatchTimeout)
			defer cancel()

			results, err := e.classifier.ClassifyBatch(bctx, batch)
			if err != nil {
				failed.Add(1)
				if common.IsServiceUnavailable(err) {
					if e.aiUnavailable.CompareAndSwap(false, true) {
						e.logger.Warn("Classification service unavailable, continuing with rules only", "error", err)
					}
				} else {
					e.logger.Warn("Classification batch failed", "batch_size", len(batch), "error", err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				for _, txn := range members[r.ID] {
					txn.Resolve(r.Category, r.Subcategory, model.SourceLLM, r.Confidence)
					resolved = append(resolved, txn)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.ByLLM += len(resolved)
	summary.FailedBatches += int(failed.Load())
	return resolved, nil
}

// groupByDescription groups transactions sharing a normalized description,
// keeping first-seen order. Duplicate and reversal rows are not sent.
func groupByDescription(txns []*model.Transaction) [][]*model.Transaction {
	index := make(map[string]int)
	var groups [][]*model.Transaction
	for _, txn := range txns {
		if txn.IsDuplicate || txn.IsReversal {
			continue
		}
		if i, ok := index[txn.NormalizedDescription]; ok {
			groups[i] = append(groups[i], txn)
			continue
		}
		index[txn.NormalizedDescription] = len(groups)
		groups = append(groups, []*model.Transaction{txn})
	}
	return groups
}
