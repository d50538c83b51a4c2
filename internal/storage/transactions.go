package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/norkodev/finbot/internal/service"
)

const transactionColumns = `id, statement_id, date, post_date, description, normalized_description,
	amount, currency, kind, has_interest, category, subcategory, merchant_id,
	classification_source, confidence, classified_at, is_recurring, is_subscription,
	is_reversal, is_duplicate, is_installment_payment, installment_plan_id, related_transaction_id`

func (s *SQLiteStorage) insertTransactionTx(ctx context.Context, q queryable, t *model.Transaction) error {
	var classifiedAt any
	if !t.Classification.ClassifiedAt.IsZero() {
		classifiedAt = t.Classification.ClassifiedAt
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.StatementID, t.Date, timeArg(t.PostDate), t.Description, t.NormalizedDescription,
		t.Amount, t.Currency, string(t.Kind), t.HasInterest,
		nullString(t.Category), nullString(t.Subcategory), nullString(t.MerchantID),
		nullString(string(t.Classification.Source)), t.Classification.Confidence, classifiedAt,
		t.IsRecurring, t.IsSubscription, t.IsReversal, t.IsDuplicate, t.IsInstallmentPayment,
		nullString(t.InstallmentPlanID), nullString(t.RelatedTransactionID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
	}
	return nil
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var t model.Transaction
	var postDate, classifiedAt sql.NullTime
	var category, subcategory, merchantID, source, planID, relatedID sql.NullString
	var kind string

	err := row.Scan(
		&t.ID, &t.StatementID, &t.Date, &postDate, &t.Description, &t.NormalizedDescription,
		&t.Amount, &t.Currency, &kind, &t.HasInterest, &category, &subcategory, &merchantID,
		&source, &t.Classification.Confidence, &classifiedAt, &t.IsRecurring, &t.IsSubscription,
		&t.IsReversal, &t.IsDuplicate, &t.IsInstallmentPayment, &planID, &relatedID,
	)
	if err != nil {
		return nil, err
	}

	t.PostDate = nullTime(postDate)
	t.Kind = model.TransactionKind(kind)
	t.Category = category.String
	t.Subcategory = subcategory.String
	t.MerchantID = merchantID.String
	t.InstallmentPlanID = planID.String
	t.RelatedTransactionID = relatedID.String
	t.Classification.Source = model.ClassificationSource(source.String)
	if classifiedAt.Valid {
		t.Classification.ClassifiedAt = classifiedAt.Time
	}
	return &t, nil
}

// GetTransactionByID retrieves a single transaction.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getTransactionByIDTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getTransactionByIDTx(ctx context.Context, q queryable, id string) (*model.Transaction, error) {
	txn, err := scanTransaction(q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// GetTransactions returns transactions matching the filter ordered by date.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	var where []string
	var args []any
	if filter.StartDate != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		where = append(where, "date < ?")
		args = append(args, filter.EndDate.UTC())
	}
	if filter.StatementID != "" {
		where = append(where, "statement_id = ?")
		args = append(args, filter.StatementID)
	}
	if filter.MerchantID != "" {
		where = append(where, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.UnclassifiedOnly {
		where = append(where, "(category IS NULL OR classification_source IS NULL)")
	}
	if filter.ResolvedOnly {
		where = append(where, "category IS NOT NULL AND classification_source IS NOT NULL")
	}
	if filter.ExcludeManual {
		where = append(where, "(classification_source IS NULL OR classification_source != ?)")
		args = append(args, string(model.SourceManual))
	}
	if filter.MaxConfidence != nil {
		where = append(where, "confidence < ?")
		args = append(args, *filter.MaxConfidence)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// UpdateClassifications persists the classification of already stored
// transactions. Rows a human corrected are left as they are; the returned
// count covers only rows actually written.
func (s *SQLiteStorage) UpdateClassifications(ctx context.Context, transactions []*model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	updated := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range transactions {
			if t == nil || t.IsManual() || t.Status() != model.StatusResolved {
				continue
			}
			if err := validateConfidence(t.Classification.Confidence); err != nil {
				return fmt.Errorf("transaction %s: %w", t.ID, err)
			}
			result, err := tx.ExecContext(ctx, `
				UPDATE transactions
				SET category = ?, subcategory = ?, merchant_id = ?,
					classification_source = ?, confidence = ?, classified_at = ?
				WHERE id = ? AND (classification_source IS NULL OR classification_source != ?)
			`,
				t.Category, nullString(t.Subcategory), nullString(t.MerchantID),
				string(t.Classification.Source), t.Classification.Confidence, t.Classification.ClassifiedAt,
				t.ID, string(model.SourceManual),
			)
			if err != nil {
				return fmt.Errorf("failed to update classification for %s: %w", t.ID, err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// ApplyCorrection records a human category choice. The transaction becomes a
// manual classification with full confidence and the merchant memory for its
// description is upserted as manual, all in one database transaction.
func (s *SQLiteStorage) ApplyCorrection(ctx context.Context, correction service.Correction) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(correction.TransactionID, "transactionID"); err != nil {
		return nil, err
	}
	if err := validateString(correction.Category, "category"); err != nil {
		return nil, err
	}

	var corrected *model.Transaction
	var merchant *model.Merchant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		txn, err := s.getTransactionByIDTx(ctx, tx, correction.TransactionID)
		if err != nil {
			return err
		}

		key := correction.MerchantKey
		if key == "" {
			key = normalize.MerchantKey(txn.Description)
		}
		if key == "" {
			key = txn.NormalizedDescription
		}
		name := correction.MerchantName
		if name == "" {
			name = key
		}

		merchant, err = s.findMerchantTx(ctx, tx, key, txn.NormalizedDescription)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		if merchant == nil {
			merchant = &model.Merchant{
				ID:             uuid.NewString(),
				Name:           name,
				NormalizedName: key,
			}
		}
		merchant.Category = correction.Category
		merchant.Subcategory = correction.Subcategory
		merchant.Source = model.MerchantSourceManual
		merchant.UpdatedAt = time.Now()
		merchant.AddAlias(txn.NormalizedDescription)
		if err := s.upsertMerchantTx(ctx, tx, merchant); err != nil {
			return err
		}

		txn.Resolve(correction.Category, correction.Subcategory, model.SourceManual, 1.0)
		txn.MerchantID = merchant.ID
		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET category = ?, subcategory = ?, merchant_id = ?,
				classification_source = ?, confidence = ?, classified_at = ?
			WHERE id = ?
		`,
			txn.Category, nullString(txn.Subcategory), txn.MerchantID,
			string(model.SourceManual), 1.0, txn.Classification.ClassifiedAt, txn.ID,
		); err != nil {
			return fmt.Errorf("failed to apply correction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM classification_cache WHERE normalized_description = ?`,
			txn.NormalizedDescription); err != nil {
			return fmt.Errorf("failed to invalidate classification cache: %w", err)
		}

		corrected = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheMerchant(merchant)
	return corrected, nil
}

// MarkSubscriptions flags transactions as recurring subscription charges and
// records the cadence on their merchant.
func (s *SQLiteStorage) MarkSubscriptions(ctx context.Context, merchantID, cadence string, transactionIDs []string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(merchantID, "merchantID"); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE merchants SET is_subscription = 1, subscription_cadence = ?, updated_at = ?
			WHERE id = ?
		`, cadence, time.Now(), merchantID)
		if err != nil {
			return fmt.Errorf("failed to mark merchant subscription: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return common.ErrNotFound
		}

		for _, id := range transactionIDs {
			if _, err := tx.ExecContext(ctx, `
				UPDATE transactions SET is_subscription = 1, is_recurring = 1 WHERE id = ?
			`, id); err != nil {
				return fmt.Errorf("failed to mark transaction %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateMerchantCache()
	return nil
}
