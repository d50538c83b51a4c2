package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
)

// GetCachedClassification returns the last automatic resolution recorded
// for a normalized description.
func (s *SQLiteStorage) GetCachedClassification(ctx context.Context, normalizedDescription string) (*model.ClassificationCacheEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(normalizedDescription, "normalizedDescription"); err != nil {
		return nil, err
	}

	var entry model.ClassificationCacheEntry
	var subcategory sql.NullString
	var source string
	err := s.db.QueryRowContext(ctx, `
		SELECT normalized_description, category, subcategory, source, confidence, updated_at
		FROM classification_cache
		WHERE normalized_description = ?
	`, normalizedDescription).Scan(
		&entry.NormalizedDescription,
		&entry.Category,
		&subcategory,
		&source,
		&entry.Confidence,
		&entry.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached classification: %w", err)
	}

	entry.Subcategory = subcategory.String
	entry.Source = model.ClassificationSource(source)
	return &entry, nil
}

// SaveCachedClassification records the resolution for a normalized
// description, replacing any previous entry.
func (s *SQLiteStorage) SaveCachedClassification(ctx context.Context, entry *model.ClassificationCacheEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateCacheEntry(entry); err != nil {
		return err
	}
	return s.saveCachedClassificationTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) saveCachedClassificationTx(ctx context.Context, q queryable, entry *model.ClassificationCacheEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO classification_cache (normalized_description, category, subcategory, source, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_description) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			source = excluded.source,
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, entry.NormalizedDescription, entry.Category, nullString(entry.Subcategory),
		string(entry.Source), entry.Confidence, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save cached classification: %w", err)
	}
	return nil
}
