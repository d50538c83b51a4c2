package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
)

const merchantColumns = `id, name, normalized_name, category, subcategory, source,
	is_subscription, subscription_cadence, transaction_count, total_amount,
	average_amount, last_seen, updated_at`

func scanMerchant(row scanner) (*model.Merchant, error) {
	var m model.Merchant
	var subcategory, cadence sql.NullString
	var lastSeen sql.NullTime
	var source string

	err := row.Scan(
		&m.ID, &m.Name, &m.NormalizedName, &m.Category, &subcategory, &source,
		&m.IsSubscription, &cadence, &m.TransactionCount, &m.TotalAmount,
		&m.AverageAmount, &lastSeen, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Subcategory = subcategory.String
	m.SubscriptionCadence = cadence.String
	m.Source = model.MerchantSource(source)
	m.LastSeen = nullTime(lastSeen)
	return &m, nil
}

// FindMerchant looks a merchant up by its canonical key first and then by a
// recorded alias of the normalized description.
func (s *SQLiteStorage) FindMerchant(ctx context.Context, key, normalizedDescription string) (*model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if key == "" && normalizedDescription == "" {
		return nil, fmt.Errorf("%w: key or normalizedDescription", ErrEmptyString)
	}

	if key != "" {
		if merchant := s.getCachedMerchant(key); merchant != nil {
			return merchant, nil
		}
	}

	merchant, err := s.findMerchantTx(ctx, s.db, key, normalizedDescription)
	if err != nil {
		return nil, err
	}
	s.cacheMerchant(merchant)
	return copyMerchant(merchant), nil
}

func (s *SQLiteStorage) findMerchantTx(ctx context.Context, q queryable, key, normalizedDescription string) (*model.Merchant, error) {
	if key != "" {
		merchant, err := s.getMerchantTx(ctx, q, key)
		if err == nil {
			return merchant, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
	}

	for _, alias := range []string{normalizedDescription, key} {
		if alias == "" {
			continue
		}
		merchant, err := scanMerchant(q.QueryRowContext(ctx, `
			SELECT `+merchantColumns+` FROM merchants
			WHERE id = (SELECT merchant_id FROM merchant_aliases WHERE alias = ?)
		`, alias))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find merchant by alias: %w", err)
		}
		if err := s.loadAliasesTx(ctx, q, merchant); err != nil {
			return nil, err
		}
		return merchant, nil
	}

	return nil, common.ErrNotFound
}

// GetMerchant retrieves a merchant by its normalized name.
func (s *SQLiteStorage) GetMerchant(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(normalizedName, "normalizedName"); err != nil {
		return nil, err
	}

	if merchant := s.getCachedMerchant(normalizedName); merchant != nil {
		return merchant, nil
	}

	merchant, err := s.getMerchantTx(ctx, s.db, normalizedName)
	if err != nil {
		return nil, err
	}
	s.cacheMerchant(merchant)
	return copyMerchant(merchant), nil
}

func (s *SQLiteStorage) getMerchantTx(ctx context.Context, q queryable, normalizedName string) (*model.Merchant, error) {
	merchant, err := scanMerchant(q.QueryRowContext(ctx,
		`SELECT `+merchantColumns+` FROM merchants WHERE normalized_name = ?`, normalizedName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	if err := s.loadAliasesTx(ctx, q, merchant); err != nil {
		return nil, err
	}
	return merchant, nil
}

func (s *SQLiteStorage) loadAliasesTx(ctx context.Context, q queryable, merchant *model.Merchant) error {
	rows, err := q.QueryContext(ctx,
		`SELECT alias FROM merchant_aliases WHERE merchant_id = ? ORDER BY alias`, merchant.ID)
	if err != nil {
		return fmt.Errorf("failed to query merchant aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	merchant.Aliases = nil
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return fmt.Errorf("failed to scan merchant alias: %w", err)
		}
		merchant.Aliases = append(merchant.Aliases, alias)
	}
	return rows.Err()
}

// LearnMerchant stores a merchant learned by an automatic tier. An existing
// merchant with the same normalized name is never overwritten; only new
// aliases are attached to it. It reports whether a new merchant was created
// and sets merchant.ID to the stored id either way.
func (s *SQLiteStorage) LearnMerchant(ctx context.Context, merchant *model.Merchant) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateMerchant(merchant); err != nil {
		return false, err
	}

	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.learnMerchantTx(ctx, tx, merchant)
		return err
	})
	if err != nil {
		return false, err
	}

	s.forgetMerchant(merchant.NormalizedName)
	return created, nil
}

func (s *SQLiteStorage) learnMerchantTx(ctx context.Context, q queryable, merchant *model.Merchant) (bool, error) {
	if merchant.ID == "" {
		merchant.ID = uuid.NewString()
	}
	if merchant.Source == "" {
		merchant.Source = model.MerchantSourceAuto
	}
	if merchant.Name == "" {
		merchant.Name = merchant.NormalizedName
	}
	if merchant.UpdatedAt.IsZero() {
		merchant.UpdatedAt = time.Now()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO merchants (id, name, normalized_name, category, subcategory, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_name) DO NOTHING
	`, merchant.ID, merchant.Name, merchant.NormalizedName, merchant.Category,
		nullString(merchant.Subcategory), string(merchant.Source), merchant.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to learn merchant: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	created := n == 1

	if !created {
		if err := q.QueryRowContext(ctx, `SELECT id FROM merchants WHERE normalized_name = ?`,
			merchant.NormalizedName).Scan(&merchant.ID); err != nil {
			return false, fmt.Errorf("failed to resolve existing merchant: %w", err)
		}
	}
	return created, s.saveAliasesTx(ctx, q, merchant.ID, merchant.Aliases)
}

// SaveMerchant creates or replaces a merchant.
func (s *SQLiteStorage) SaveMerchant(ctx context.Context, merchant *model.Merchant) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMerchant(merchant); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.upsertMerchantTx(ctx, tx, merchant)
	})
	if err != nil {
		return err
	}

	s.forgetMerchant(merchant.NormalizedName)
	return nil
}

func (s *SQLiteStorage) upsertMerchantTx(ctx context.Context, q queryable, merchant *model.Merchant) error {
	if merchant.ID == "" {
		merchant.ID = uuid.NewString()
	}
	if merchant.Source == "" {
		merchant.Source = model.MerchantSourceAuto
	}
	if merchant.Name == "" {
		merchant.Name = merchant.NormalizedName
	}
	if merchant.UpdatedAt.IsZero() {
		merchant.UpdatedAt = time.Now()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO merchants (`+merchantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_name) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			subcategory = excluded.subcategory,
			source = excluded.source,
			is_subscription = excluded.is_subscription,
			subscription_cadence = excluded.subscription_cadence,
			transaction_count = excluded.transaction_count,
			total_amount = excluded.total_amount,
			average_amount = excluded.average_amount,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at
	`,
		merchant.ID, merchant.Name, merchant.NormalizedName, merchant.Category,
		nullString(merchant.Subcategory), string(merchant.Source),
		merchant.IsSubscription, nullString(merchant.SubscriptionCadence), merchant.TransactionCount,
		merchant.TotalAmount, merchant.AverageAmount, timeArg(merchant.LastSeen), merchant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save merchant: %w", err)
	}

	if err := q.QueryRowContext(ctx, `SELECT id FROM merchants WHERE normalized_name = ?`,
		merchant.NormalizedName).Scan(&merchant.ID); err != nil {
		return fmt.Errorf("failed to resolve merchant id: %w", err)
	}
	return s.saveAliasesTx(ctx, q, merchant.ID, merchant.Aliases)
}

// saveAliasesTx attaches aliases to a merchant. An alias already owned by
// another merchant keeps its first owner.
func (s *SQLiteStorage) saveAliasesTx(ctx context.Context, q queryable, merchantID string, aliases []string) error {
	for _, alias := range aliases {
		if alias == "" {
			continue
		}
		if _, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO merchant_aliases (alias, merchant_id) VALUES (?, ?)`,
			alias, merchantID); err != nil {
			return fmt.Errorf("failed to save merchant alias %q: %w", alias, err)
		}
	}
	return nil
}

// GetAllMerchants retrieves every merchant ordered by normalized name.
func (s *SQLiteStorage) GetAllMerchants(ctx context.Context) ([]model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	aliases := make(map[string][]string)
	aliasRows, err := s.db.QueryContext(ctx, `SELECT merchant_id, alias FROM merchant_aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant aliases: %w", err)
	}
	for aliasRows.Next() {
		var merchantID, alias string
		if err := aliasRows.Scan(&merchantID, &alias); err != nil {
			_ = aliasRows.Close()
			return nil, fmt.Errorf("failed to scan merchant alias: %w", err)
		}
		aliases[merchantID] = append(aliases[merchantID], alias)
	}
	if err := aliasRows.Close(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+merchantColumns+` FROM merchants ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var merchants []model.Merchant
	for rows.Next() {
		merchant, err := scanMerchant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merchant: %w", err)
		}
		merchant.Aliases = aliases[merchant.ID]
		merchants = append(merchants, *merchant)
	}
	return merchants, rows.Err()
}

// DeleteMerchant deletes a merchant and its aliases.
func (s *SQLiteStorage) DeleteMerchant(ctx context.Context, normalizedName string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(normalizedName, "normalizedName"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM merchants WHERE normalized_name = ?`, normalizedName)
	if err != nil {
		return fmt.Errorf("failed to delete merchant: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}

	s.forgetMerchant(normalizedName)
	return nil
}

// RefreshMerchantStats recomputes transaction count, totals and last seen
// date for every merchant from its linked transactions. Duplicates and
// reversals are not counted.
func (s *SQLiteStorage) RefreshMerchantStats(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT merchant_id, date, amount FROM transactions
			WHERE merchant_id IS NOT NULL AND is_duplicate = 0 AND is_reversal = 0
		`)
		if err != nil {
			return fmt.Errorf("failed to query merchant transactions: %w", err)
		}

		stats := make(map[string]*model.Merchant)
		for rows.Next() {
			var merchantID string
			var txn model.Transaction
			if err := rows.Scan(&merchantID, &txn.Date, &txn.Amount); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan merchant transaction: %w", err)
			}
			m, ok := stats[merchantID]
			if !ok {
				m = &model.Merchant{}
				stats[merchantID] = m
			}
			m.Observe(&txn)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE merchants SET transaction_count = 0, total_amount = '0', average_amount = '0', last_seen = NULL
		`); err != nil {
			return fmt.Errorf("failed to reset merchant stats: %w", err)
		}

		ids := make([]string, 0, len(stats))
		for id := range stats {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			m := stats[id]
			if _, err := tx.ExecContext(ctx, `
				UPDATE merchants
				SET transaction_count = ?, total_amount = ?, average_amount = ?, last_seen = ?
				WHERE id = ?
			`, m.TransactionCount, m.TotalAmount, m.AverageAmount, timeArg(m.LastSeen), id); err != nil {
				return fmt.Errorf("failed to update merchant stats: %w", err)
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

func copyMerchant(m *model.Merchant) *model.Merchant {
	if m == nil {
		return nil
	}
	c := *m
	c.Aliases = slices.Clone(m.Aliases)
	if m.LastSeen != nil {
		seen := *m.LastSeen
		c.LastSeen = &seen
	}
	return &c
}

// getCachedMerchant retrieves a merchant from the cache.
func (s *SQLiteStorage) getCachedMerchant(normalizedName string) *model.Merchant {
	s.cacheMutex.RLock()

	if time.Now().After(s.cacheExpiry) {
		s.cacheMutex.RUnlock()
		s.cacheMutex.Lock()
		defer s.cacheMutex.Unlock()

		// Double-check after acquiring write lock
		if time.Now().After(s.cacheExpiry) {
			s.merchantCache = make(map[string]*model.Merchant)
		}
		return nil
	}

	merchant := copyMerchant(s.merchantCache[normalizedName])
	s.cacheMutex.RUnlock()
	return merchant
}

// cacheMerchant adds a merchant to the cache.
func (s *SQLiteStorage) cacheMerchant(merchant *model.Merchant) {
	if merchant == nil {
		return
	}
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	if len(s.merchantCache) == 0 {
		s.cacheExpiry = time.Now().Add(merchantCacheTTL)
	}
	s.merchantCache[merchant.NormalizedName] = copyMerchant(merchant)
}

func (s *SQLiteStorage) forgetMerchant(normalizedName string) {
	s.cacheMutex.Lock()
	delete(s.merchantCache, normalizedName)
	s.cacheMutex.Unlock()
}

func (s *SQLiteStorage) invalidateMerchantCache() {
	s.cacheMutex.Lock()
	s.merchantCache = make(map[string]*model.Merchant)
	s.cacheMutex.Unlock()
}

// WarmMerchantCache loads all merchants into the cache.
func (s *SQLiteStorage) WarmMerchantCache(ctx context.Context) error {
	merchants, err := s.GetAllMerchants(ctx)
	if err != nil {
		return err
	}

	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.merchantCache = make(map[string]*model.Merchant, len(merchants))
	for i := range merchants {
		s.merchantCache[merchants[i].NormalizedName] = &merchants[i]
	}
	s.cacheExpiry = time.Now().Add(merchantCacheTTL)
	return nil
}
