package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
)

const ledgerColumns = `id, file_path, file_hash, file_size, bank, status, error_detail,
	statements_created, transactions_created, installments_created, forced, processed_at`

// ShouldProcess reports whether a document with the given hash needs
// processing. Any prior ledger entry, whatever its status, means the
// document was already handled unless force is set.
func (s *SQLiteStorage) ShouldProcess(ctx context.Context, hash string, force bool) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return false, err
	}
	if force {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ingestion_ledger WHERE file_hash = ?)`, hash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check ingestion ledger: %w", err)
	}
	return !exists, nil
}

func scanLedgerEntry(row scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var bank, detail sql.NullString
	var status string

	if err := row.Scan(
		&e.ID, &e.FilePath, &e.FileHash, &e.FileSize, &bank, &status, &detail,
		&e.StatementsCreated, &e.TransactionsCreated, &e.InstallmentsCreated, &e.Forced, &e.ProcessedAt,
	); err != nil {
		return nil, err
	}
	e.Bank = bank.String
	e.ErrorDetail = detail.String
	e.Status = model.LedgerStatus(status)
	return &e, nil
}

// GetLedgerEntry returns the most recent ledger entry for a hash.
func (s *SQLiteStorage) GetLedgerEntry(ctx context.Context, hash string) (*model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(hash, "hash"); err != nil {
		return nil, err
	}

	entry, err := scanLedgerEntry(s.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ingestion_ledger WHERE file_hash = ? ORDER BY id DESC LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// ListLedgerEntries returns the newest ledger entries first. A non-positive
// limit returns every entry.
func (s *SQLiteStorage) ListLedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + ledgerColumns + ` FROM ingestion_ledger ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// RecordOutcome appends a ledger row on its own. It is used for documents
// that produced no statement.
func (s *SQLiteStorage) RecordOutcome(ctx context.Context, entry *model.LedgerEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLedgerEntry(entry); err != nil {
		return err
	}
	return s.appendLedgerTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) appendLedgerTx(ctx context.Context, q queryable, entry *model.LedgerEntry) error {
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now()
	}
	result, err := q.ExecContext(ctx, `
		INSERT INTO ingestion_ledger (file_path, file_hash, file_size, bank, status, error_detail,
			statements_created, transactions_created, installments_created, forced, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.FilePath, entry.FileHash, entry.FileSize, nullString(entry.Bank), string(entry.Status),
		nullString(entry.ErrorDetail), entry.StatementsCreated, entry.TransactionsCreated,
		entry.InstallmentsCreated, entry.Forced, entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// CommitIngestion writes a statement, its installment plans, its
// transactions and the ledger entry in a single database transaction.
//
// With Replace set, statements already stored for the same hash are deleted
// first and their plans and transactions go with them. Without it, an
// existing statement for the hash aborts the commit with a
// DuplicateLedgerConflictError.
func (s *SQLiteStorage) CommitIngestion(ctx context.Context, record *service.IngestionRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateIngestion(record); err != nil {
		return err
	}

	st := record.Statement
	entry := &record.Entry
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	entry.StatementsCreated = 1
	entry.TransactionsCreated = len(record.Transactions)
	entry.InstallmentsCreated = len(record.Plans)
	entry.Forced = entry.Forced || record.Replace

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if record.Replace {
			result, err := tx.ExecContext(ctx, `DELETE FROM statements WHERE source_hash = ?`, entry.FileHash)
			if err != nil {
				return fmt.Errorf("failed to retire previous statements: %w", err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				slog.Info("Replacing previously ingested statements",
					"file", entry.FilePath,
					"hash", entry.FileHash,
					"statements", n)
			}
		} else {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM statements WHERE source_hash = ?)`, entry.FileHash).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check existing statements: %w", err)
			}
			if exists {
				return &common.DuplicateLedgerConflictError{Hash: entry.FileHash, Path: entry.FilePath}
			}
		}

		if err := s.insertStatementTx(ctx, tx, st); err != nil {
			return err
		}
		for _, plan := range record.Plans {
			if err := s.insertPlanTx(ctx, tx, plan); err != nil {
				return err
			}
		}
		for _, learning := range record.Learned {
			if err := s.commitLearningTx(ctx, tx, learning); err != nil {
				return err
			}
		}
		for _, txn := range record.Transactions {
			if err := s.insertTransactionTx(ctx, tx, txn); err != nil {
				return err
			}
		}
		return s.appendLedgerTx(ctx, tx, entry)
	})
	if err != nil {
		entry.ID = 0
		return err
	}

	for _, learning := range record.Learned {
		s.forgetMerchant(learning.Merchant.NormalizedName)
	}
	return nil
}

// commitLearningTx stores a learned merchant and its cache entries and
// points the transactions it classified at the stored merchant.
func (s *SQLiteStorage) commitLearningTx(ctx context.Context, q queryable, learning *service.Learning) error {
	if _, err := s.learnMerchantTx(ctx, q, learning.Merchant); err != nil {
		return err
	}
	for _, txn := range learning.Transactions {
		txn.MerchantID = learning.Merchant.ID
	}
	for _, entry := range learning.Cache {
		if err := s.saveCachedClassificationTx(ctx, q, entry); err != nil {
			return err
		}
	}
	return nil
}
