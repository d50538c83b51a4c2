package engine

import (
	"context"

	"github.com/norkodev/finbot/internal/llm"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/rules"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// Classifier defines the contract for the AI tier.
type Classifier interface {
	ClassifyBatch(ctx context.Context, items []llm.Item) ([]llm.Result, error)
}

// RuleMatcher defines the contract for the rule tier.
type RuleMatcher interface {
	Match(description string, amount decimal.Decimal) (*rules.Rule, bool)
}

// Store is the part of the persistence layer the engine reads and writes.
type Store interface {
	FindMerchant(ctx context.Context, key, normalizedDescription string) (*model.Merchant, error)
	LearnMerchant(ctx context.Context, merchant *model.Merchant) (bool, error)
	GetCachedClassification(ctx context.Context, normalizedDescription string) (*model.ClassificationCacheEntry, error)
	SaveCachedClassification(ctx context.Context, entry *model.ClassificationCacheEntry) error
	GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error)
	UpdateClassifications(ctx context.Context, transactions []*model.Transaction) (int, error)
}
