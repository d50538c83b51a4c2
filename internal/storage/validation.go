// Package storage provides the SQLite persistence layer for finbot.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidStatus      = errors.New("invalid ledger status")
	ErrInvalidStatement   = errors.New("invalid statement")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidMerchant    = errors.New("invalid merchant")
	ErrInvalidConfidence  = errors.New("confidence must be between 0 and 1")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, c)
	}
	return nil
}

func validateLedgerEntry(entry *model.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: ledger entry", ErrNilParameter)
	}
	if err := validateString(entry.FileHash, "fileHash"); err != nil {
		return err
	}
	if err := validateString(entry.FilePath, "filePath"); err != nil {
		return err
	}
	switch entry.Status {
	case model.LedgerSuccess, model.LedgerPartial, model.LedgerError:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, entry.Status)
	}
	return nil
}

func validateIngestion(record *service.IngestionRecord) error {
	if record == nil {
		return fmt.Errorf("%w: ingestion record", ErrNilParameter)
	}
	if err := validateLedgerEntry(&record.Entry); err != nil {
		return err
	}
	if record.Entry.Status == model.LedgerError {
		return fmt.Errorf("%w: error outcomes are recorded without statement rows", ErrInvalidStatus)
	}
	st := record.Statement
	if st == nil {
		return fmt.Errorf("%w: statement", ErrNilParameter)
	}
	if st.ID == "" || st.Bank == "" {
		return fmt.Errorf("%w: missing id or bank", ErrInvalidStatement)
	}
	if st.SourceHash != record.Entry.FileHash {
		return fmt.Errorf("%w: source hash %q does not match ledger hash %q", ErrInvalidStatement, st.SourceHash, record.Entry.FileHash)
	}
	for i, txn := range record.Transactions {
		if err := validateTransaction(txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	for i, plan := range record.Plans {
		if plan == nil || plan.ID == "" {
			return fmt.Errorf("installment plan at index %d: %w", i, ErrNilParameter)
		}
		if err := plan.Validate(); err != nil {
			return fmt.Errorf("installment plan at index %d: %w", i, err)
		}
	}
	for i, learning := range record.Learned {
		if learning == nil {
			return fmt.Errorf("learned merchant at index %d: %w", i, ErrNilParameter)
		}
		if err := validateMerchant(learning.Merchant); err != nil {
			return fmt.Errorf("learned merchant at index %d: %w", i, err)
		}
		for _, entry := range learning.Cache {
			if err := validateCacheEntry(entry); err != nil {
				return fmt.Errorf("learned merchant at index %d: %w", i, err)
			}
		}
	}
	return nil
}

func validateCacheEntry(entry *model.ClassificationCacheEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: cache entry", ErrNilParameter)
	}
	if err := validateString(entry.NormalizedDescription, "normalizedDescription"); err != nil {
		return err
	}
	if err := validateString(entry.Category, "category"); err != nil {
		return err
	}
	return validateConfidence(entry.Confidence)
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Description == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTransaction)
	}
	return validateConfidence(txn.Classification.Confidence)
}

// validateMerchant validates a merchant.
func validateMerchant(merchant *model.Merchant) error {
	if merchant == nil {
		return fmt.Errorf("%w: merchant", ErrNilParameter)
	}
	if strings.TrimSpace(merchant.NormalizedName) == "" {
		return fmt.Errorf("%w: missing normalized name", ErrInvalidMerchant)
	}
	if strings.TrimSpace(merchant.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidMerchant)
	}
	return nil
}
