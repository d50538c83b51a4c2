// Package pipeline drives documents from a source through extraction,
// deduplication and classification into storage, recording every outcome
// in the ingestion ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/dedup"
	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/engine"
	"github.com/norkodev/finbot/internal/extract"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
	"golang.org/x/sync/errgroup"
)

// Status is the per-document result of a run.
type Status string

// Document statuses.
const (
	StatusSuccess  Status = "success"
	StatusPartial  Status = "partial"
	StatusError    Status = "error"
	StatusSkipped  Status = "skipped"
	StatusConflict Status = "conflict"
)

// Store is the part of the persistence layer the pipeline writes to.
type Store interface {
	ShouldProcess(ctx context.Context, hash string, force bool) (bool, error)
	RecordOutcome(ctx context.Context, entry *model.LedgerEntry) error
	CommitIngestion(ctx context.Context, record *service.IngestionRecord) error
}

// Classifier resolves categories for freshly extracted transactions. What
// it learns is returned for the pipeline to commit with the document.
type Classifier interface {
	ClassifyForIngestion(ctx context.Context, txns []*model.Transaction) (engine.Summary, []*service.Learning, error)
}

// Options configures a run.
type Options struct {
	// OnDocument is called once per document as soon as its outcome is
	// known. It may be called from several goroutines.
	OnDocument func(Outcome)
	Workers    int
	Force      bool
}

// Outcome describes what happened to one document.
type Outcome struct {
	Err          error
	Path         string
	Hash         string
	Bank         string
	Status       Status
	Transactions int
	Classified   int
	Unclassified int
	Duplicates   int
	Reversals    int
}

// Summary aggregates a run.
type Summary struct {
	Outcomes       []Outcome
	Classification engine.Summary
	Processed      int
	Partial        int
	Skipped        int
	Failed         int
	Conflicts      int
	Transactions   int
}

// Pipeline processes statement documents.
type Pipeline struct {
	store      Store
	registry   *extract.Registry
	classifier Classifier
	detector   *dedup.Detector
	logger     *slog.Logger
	commitMu   sync.Mutex
}

// New creates a pipeline. A nil registry uses the built-in extractors and a
// nil classifier leaves transactions unclassified.
func New(store Store, registry *extract.Registry, classifier Classifier, logger *slog.Logger) *Pipeline {
	if registry == nil {
		registry = extract.DefaultRegistry()
	}
	return &Pipeline{
		store:      store,
		registry:   registry,
		classifier: classifier,
		detector:   dedup.NewDetector(),
		logger:     common.LoggerOrDefault(logger),
	}
}

// Run processes every document in source. A failing document never stops
// the others; its cause is in its Outcome and the ledger. Run only returns
// an error when the source cannot be listed or ctx ends.
func (p *Pipeline) Run(ctx context.Context, source document.Source, opts Options) (*Summary, error) {
	refs, err := source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(refs) == 0 {
		p.logger.Warn("No documents found")
		return &Summary{}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	p.logger.Info("Processing documents", "documents", len(refs), "workers", workers, "force", opts.Force)

	outcomes := make([]Outcome, len(refs))
	classified := make([]engine.Summary, len(refs))
	run := &runState{seen: make(map[string]string)}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ref := range refs {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = Outcome{Path: ref.Path, Status: StatusError, Err: ctx.Err()}
				return nil
			}
			outcomes[i], classified[i] = p.processDocument(ctx, source, ref, opts.Force, run)
			if opts.OnDocument != nil {
				opts.OnDocument(outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{Outcomes: outcomes}
	for i, o := range outcomes {
		summary.Classification.Add(classified[i])
		summary.Transactions += o.Transactions
		switch o.Status {
		case StatusSuccess:
			summary.Processed++
		case StatusPartial:
			summary.Processed++
			summary.Partial++
		case StatusSkipped:
			summary.Skipped++
		case StatusConflict:
			summary.Conflicts++
		case StatusError:
			summary.Failed++
		}
	}

	p.logger.Info("Processing finished",
		"processed", summary.Processed,
		"partial", summary.Partial,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"conflicts", summary.Conflicts,
		"transactions", summary.Transactions)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runState tracks the hashes claimed during one run.
type runState struct {
	seen map[string]string
	mu   sync.Mutex
}

// claim reports the path that already claimed hash in this run, if any.
func (r *runState) claim(hash, path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.seen[hash]; ok {
		return first, false
	}
	r.seen[hash] = path
	return "", true
}

func (p *Pipeline) processDocument(ctx context.Context, source document.Source, ref document.Ref, force bool, run *runState) (Outcome, engine.Summary) {
	out := Outcome{Path: ref.Path}
	logger := p.logger.With("file", ref.Path)

	doc, err := source.Open(ctx, ref)
	if err != nil {
		logger.Error("Failed to open document", "error", err)
		out.Status, out.Err = StatusError, err
		return out, engine.Summary{}
	}
	out.Hash = doc.Hash()

	if first, ok := run.claim(out.Hash, ref.Path); !ok {
		logger.Info("Skipping copy of a document already seen in this run", "original", first)
		out.Status = StatusSkipped
		return out, engine.Summary{}
	}

	should, err := p.store.ShouldProcess(ctx, out.Hash, force)
	if err != nil {
		logger.Error("Failed to check ingestion ledger", "error", err)
		out.Status, out.Err = StatusError, err
		return out, engine.Summary{}
	}
	if !should {
		logger.Debug("Document already processed", "hash", out.Hash)
		out.Status = StatusSkipped
		return out, engine.Summary{}
	}

	entry := model.LedgerEntry{
		FilePath: ref.Path,
		FileHash: out.Hash,
		FileSize: doc.Size(),
		Forced:   force,
	}

	x, err := p.registry.Dispatch(doc)
	if err != nil {
		return p.fail(ctx, logger, out, entry, err), engine.Summary{}
	}
	out.Bank, entry.Bank = x.Bank, x.Bank
	if x.Status() == model.LedgerError {
		cause := x.Err()
		if cause == nil {
			cause = errors.New("no statement data recovered")
		}
		return p.fail(ctx, logger, out, entry, cause), engine.Summary{}
	}

	result := p.detector.Detect(x.Transactions)
	out.Duplicates, out.Reversals = result.Duplicates, result.Reversals
	if result.Ambiguous > 0 {
		logger.Debug("Left ambiguous reversal candidates unflagged", "candidates", result.Ambiguous)
	}
	x.Statement.ComputeTotals(x.Transactions, x.Plans)

	var details []string
	if err := x.Err(); err != nil {
		details = append(details, err.Error())
	}

	var (
		classification engine.Summary
		learned        []*service.Learning
	)
	if p.classifier != nil && len(x.Transactions) > 0 {
		classification, learned, err = p.classifier.ClassifyForIngestion(ctx, x.Transactions)
		if err != nil {
			if ctx.Err() != nil {
				out.Status, out.Err = StatusError, err
				return out, classification
			}
			logger.Warn("Classification failed, storing transactions unclassified", "error", err)
			details = append(details, "classification: "+err.Error())
		}
	}

	entry.Status = x.Status()
	if len(details) > 0 && entry.Status == model.LedgerSuccess {
		entry.Status = model.LedgerPartial
	}
	entry.ErrorDetail = strings.Join(details, "; ")

	record := &service.IngestionRecord{
		Statement:    x.Statement,
		Entry:        entry,
		Transactions: x.Transactions,
		Plans:        x.Plans,
		Learned:      learned,
		Replace:      force,
	}

	p.commitMu.Lock()
	err = p.store.CommitIngestion(ctx, record)
	p.commitMu.Unlock()

	if err != nil {
		classification.MerchantsLearned = 0
		var conflict *common.DuplicateLedgerConflictError
		if errors.As(err, &conflict) {
			logger.Error("Statement already stored for this document", "hash", out.Hash)
			out = p.fail(ctx, logger, out, entry, err)
			out.Status = StatusConflict
			return out, classification
		}
		return p.fail(ctx, logger, out, entry, err), classification
	}

	out.Transactions = len(x.Transactions)
	for _, t := range x.Transactions {
		if t.Status() == model.StatusResolved {
			out.Classified++
		} else {
			out.Unclassified++
		}
	}
	out.Status = StatusSuccess
	if entry.Status == model.LedgerPartial {
		out.Status = StatusPartial
		out.Err = errors.New(entry.ErrorDetail)
	}

	logger.Info("Document processed",
		"bank", out.Bank,
		"status", out.Status,
		"transactions", out.Transactions,
		"classified", out.Classified,
		"duplicates", out.Duplicates,
		"reversals", out.Reversals)
	return out, classification
}

// fail records an error outcome in the ledger and returns it.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, out Outcome, entry model.LedgerEntry, cause error) Outcome {
	common.LogError(cause, "Document failed", common.Fields{"file": entry.FilePath, "bank": entry.Bank})

	entry.Status = model.LedgerError
	entry.ErrorDetail = cause.Error()
	if err := p.store.RecordOutcome(ctx, &entry); err != nil {
		logger.Error("Failed to record ledger outcome", "error", err)
	}

	out.Status, out.Err = StatusError, cause
	return out
}
