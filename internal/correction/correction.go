// Package correction applies human category decisions and lists the
// transactions that deserve one.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
)

// DefaultReviewThreshold is the confidence below which automatic
// classifications are offered for review.
const DefaultReviewThreshold = 0.5

// ErrInvalidThreshold is returned for a review threshold outside (0, 1].
var ErrInvalidThreshold = errors.New("review threshold must be in (0, 1]")

// Store is the part of the persistence layer corrections need.
type Store interface {
	ApplyCorrection(ctx context.Context, correction service.Correction) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error)
}

// Service records corrections into the transaction and merchant memory.
type Service struct {
	store  Store
	vocab  model.Vocabulary
	logger *slog.Logger
}

// NewService creates a correction service. A nil vocabulary uses the
// default one.
func NewService(store Store, vocab model.Vocabulary, logger *slog.Logger) *Service {
	if vocab == nil {
		vocab = model.DefaultVocabulary()
	}
	return &Service{
		store:  store,
		vocab:  vocab,
		logger: common.LoggerOrDefault(logger),
	}
}

// Correct assigns category and subcategory to a transaction as a manual
// decision. The merchant behind the transaction is upserted as manual, so
// later transactions from it resolve to the same category.
func (s *Service) Correct(ctx context.Context, transactionID, category, subcategory string) (*model.Transaction, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	subcategory = strings.ToLower(strings.TrimSpace(subcategory))

	if err := s.vocab.Validate(category, subcategory); err != nil {
		return nil, common.NewUserError(fmt.Sprintf("invalid category %s/%s", category, subcategory), err)
	}

	txn, err := s.store.ApplyCorrection(ctx, service.Correction{
		TransactionID: transactionID,
		Category:      category,
		Subcategory:   subcategory,
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, err)
		}
		return nil, fmt.Errorf("failed to apply correction: %w", err)
	}

	s.logger.Info("Applied correction",
		"transaction", txn.ID,
		"description", txn.NormalizedDescription,
		"category", category,
		"subcategory", subcategory)
	return txn, nil
}

// ReviewQueue returns automatically classified transactions whose
// confidence is below threshold, oldest first. Manual rows never appear.
func (s *Service) ReviewQueue(ctx context.Context, threshold float64, limit int) ([]*model.Transaction, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}

	txns, err := s.store.GetTransactions(ctx, service.TransactionFilter{
		ResolvedOnly:  true,
		ExcludeManual: true,
		MaxConfidence: &threshold,
		Limit:         limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}
	return txns, nil
}

// Unclassified returns transactions no tier could resolve.
func (s *Service) Unclassified(ctx context.Context, limit int) ([]*model.Transaction, error) {
	txns, err := s.store.GetTransactions(ctx, service.TransactionFilter{
		UnclassifiedOnly: true,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load unclassified transactions: %w", err)
	}
	return txns, nil
}
