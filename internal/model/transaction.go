package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assigned to transactions whose source does not state one.
const DefaultCurrency = "MXN"

// TransactionKind describes what a statement line represents.
type TransactionKind string

// Transaction kinds.
const (
	KindExpense  TransactionKind = "expense"
	KindPayment  TransactionKind = "payment"
	KindIncome   TransactionKind = "income"
	KindFee      TransactionKind = "fee"
	KindInterest TransactionKind = "interest"
	KindReversal TransactionKind = "reversal"
)

// Transaction is a single statement line. Charges are positive and
// payments or credits are negative.
type Transaction struct {
	Date                  time.Time
	PostDate              *time.Time
	Amount                decimal.Decimal
	Classification        Classification
	ID                    string
	StatementID           string
	Description           string
	NormalizedDescription string
	Currency              string
	Kind                  TransactionKind
	Category              string
	Subcategory           string
	MerchantID            string
	InstallmentPlanID     string
	// RelatedTransactionID is the counterpart of a reversal pair, or the
	// original a duplicate repeats.
	RelatedTransactionID string
	HasInterest           bool
	IsRecurring           bool
	IsSubscription        bool
	IsReversal            bool
	IsDuplicate           bool
	IsInstallmentPayment  bool
}

// Status reports whether the transaction has been resolved by any tier.
func (t *Transaction) Status() ClassificationStatus {
	if t.Category == "" || t.Classification.Source == "" {
		return StatusUnclassified
	}
	return StatusResolved
}

// IsManual reports whether a human assigned the current category.
func (t *Transaction) IsManual() bool {
	return t.Classification.Source == SourceManual
}

// CountsTowardSpend reports whether the transaction belongs in spending
// aggregates. Reversals, duplicates and payments never do.
func (t *Transaction) CountsTowardSpend() bool {
	if t.IsReversal || t.IsDuplicate {
		return false
	}
	return t.Kind != KindPayment && t.Kind != KindReversal
}

// Resolve assigns a category from one of the classification tiers.
func (t *Transaction) Resolve(category, subcategory string, source ClassificationSource, confidence float64) {
	t.Category = category
	t.Subcategory = subcategory
	t.Classification = Classification{
		Source:       source,
		Confidence:   confidence,
		ClassifiedAt: time.Now(),
	}
}
