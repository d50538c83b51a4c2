package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
)

// Uncategorized is the category key for spending no tier has resolved.
const Uncategorized = "sin_clasificar"

// CategoryTotals sums spending per category for transactions dated in
// [start, end). Payments, reversals and duplicates are excluded.
func (s *SQLiteStorage) CategoryTotals(ctx context.Context, start, end time.Time) (map[string]service.CategorySummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, amount, kind, is_reversal, is_duplicate
		FROM transactions
		WHERE date >= ? AND date < ?
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	totals := make(map[string]service.CategorySummary)
	for rows.Next() {
		var txn model.Transaction
		var category sql.NullString
		var kind string
		if err := rows.Scan(&category, &txn.Amount, &kind, &txn.IsReversal, &txn.IsDuplicate); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		txn.Kind = model.TransactionKind(kind)
		if !txn.CountsTowardSpend() {
			continue
		}

		name := Uncategorized
		if category.String != "" {
			name = category.String
		}
		summary := totals[name]
		summary.Amount = summary.Amount.Add(txn.Amount)
		summary.Count++
		totals[name] = summary
	}
	return totals, rows.Err()
}
