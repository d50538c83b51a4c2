// Package service defines the persistence boundary shared by the pipeline stages.
package service

import (
	"context"
	"time"

	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate        *time.Time
	EndDate          *time.Time
	MaxConfidence    *float64
	StatementID      string
	MerchantID       string
	Limit            int
	UnclassifiedOnly bool
	ResolvedOnly     bool
	ExcludeManual    bool
}

// IngestionRecord is everything produced for one document. It is committed
// in a single database transaction together with its ledger entry.
type IngestionRecord struct {
	Statement    *model.Statement
	Entry        model.LedgerEntry
	Transactions []*model.Transaction
	Plans        []*model.InstallmentPlan
	// Learned is merchant memory gathered while classifying Transactions.
	// It is stored only if the rest of the record is.
	Learned []*Learning
	// Replace retires any records already stored for Entry.FileHash.
	Replace bool
}

// Learning is a merchant learned by an automatic tier, the cache entries
// that go with it and the transactions it classified. Committing it links
// those transactions to the stored merchant.
type Learning struct {
	Merchant     *model.Merchant
	Cache        []*model.ClassificationCacheEntry
	Transactions []*model.Transaction
}

// Correction is a human-chosen category for one transaction.
type Correction struct {
	TransactionID string
	Category      string
	Subcategory   string
	MerchantKey   string
	MerchantName  string
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Ingestion ledger
	ShouldProcess(ctx context.Context, hash string, force bool) (bool, error)
	GetLedgerEntry(ctx context.Context, hash string) (*model.LedgerEntry, error)
	RecordOutcome(ctx context.Context, entry *model.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error)
	CommitIngestion(ctx context.Context, record *IngestionRecord) error

	// Statement operations
	GetStatement(ctx context.Context, id string) (*model.Statement, error)
	GetStatementsByHash(ctx context.Context, hash string) ([]model.Statement, error)
	GetInstallmentPlans(ctx context.Context, statementID string) ([]model.InstallmentPlan, error)

	// Transaction operations
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error)
	UpdateClassifications(ctx context.Context, transactions []*model.Transaction) (int, error)
	ApplyCorrection(ctx context.Context, correction Correction) (*model.Transaction, error)
	MarkSubscriptions(ctx context.Context, merchantID, cadence string, transactionIDs []string) error
	CategoryTotals(ctx context.Context, start, end time.Time) (map[string]CategorySummary, error)

	// Merchant operations
	FindMerchant(ctx context.Context, key, normalizedDescription string) (*model.Merchant, error)
	GetMerchant(ctx context.Context, normalizedName string) (*model.Merchant, error)
	LearnMerchant(ctx context.Context, merchant *model.Merchant) (bool, error)
	SaveMerchant(ctx context.Context, merchant *model.Merchant) error
	GetAllMerchants(ctx context.Context) ([]model.Merchant, error)
	DeleteMerchant(ctx context.Context, normalizedName string) error
	RefreshMerchantStats(ctx context.Context) error

	// Classification cache
	GetCachedClassification(ctx context.Context, normalizedDescription string) (*model.ClassificationCacheEntry, error)
	SaveCachedClassification(ctx context.Context, entry *model.ClassificationCacheEntry) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// CategorySummary contains aggregated statistics for a category.
type CategorySummary struct {
	Amount decimal.Decimal
	Count  int
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
