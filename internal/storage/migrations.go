package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 5

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Statements, installment plans and transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS statements (
					id TEXT PRIMARY KEY,
					bank TEXT NOT NULL,
					source_type TEXT NOT NULL,
					account_suffix TEXT,
					period_start DATE,
					period_end DATE,
					statement_date DATE,
					due_date DATE,
					previous_balance TEXT,
					current_balance TEXT,
					minimum_payment TEXT,
					payment_no_interest TEXT,
					credit_limit TEXT,
					available_credit TEXT,
					total_regular TEXT,
					total_installments TEXT,
					total_interest TEXT,
					total_fees TEXT,
					total_payments TEXT,
					source_file TEXT NOT NULL,
					source_hash TEXT NOT NULL,
					raw_data TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_statements_hash ON statements(source_hash)`,
				`CREATE INDEX idx_statements_period ON statements(bank, period_end)`,

				`CREATE TABLE IF NOT EXISTS installment_plans (
					id TEXT PRIMARY KEY,
					statement_id TEXT NOT NULL,
					description TEXT NOT NULL,
					original_amount TEXT NOT NULL,
					pending_balance TEXT NOT NULL,
					monthly_payment TEXT NOT NULL,
					current_installment INTEGER NOT NULL DEFAULT 0,
					total_installments INTEGER NOT NULL DEFAULT 0,
					start_date DATE,
					has_interest BOOLEAN NOT NULL DEFAULT 0,
					interest_rate TEXT NOT NULL DEFAULT '0',
					interest_this_period TEXT NOT NULL DEFAULT '0',
					tax_this_period TEXT NOT NULL DEFAULT '0',
					plan_type TEXT NOT NULL,
					status TEXT NOT NULL,
					source_bank TEXT NOT NULL,
					FOREIGN KEY (statement_id) REFERENCES statements(id) ON DELETE CASCADE,
					CHECK (current_installment <= total_installments OR total_installments = 0)
				)`,
				`CREATE INDEX idx_installment_plans_statement ON installment_plans(statement_id)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					statement_id TEXT NOT NULL,
					date DATE NOT NULL,
					post_date DATE,
					description TEXT NOT NULL,
					normalized_description TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'MXN',
					kind TEXT NOT NULL,
					has_interest BOOLEAN NOT NULL DEFAULT 0,
					category TEXT,
					subcategory TEXT,
					merchant_id TEXT,
					classification_source TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					classified_at DATETIME,
					is_reversal BOOLEAN NOT NULL DEFAULT 0,
					is_duplicate BOOLEAN NOT NULL DEFAULT 0,
					is_installment_payment BOOLEAN NOT NULL DEFAULT 0,
					installment_plan_id TEXT,
					FOREIGN KEY (statement_id) REFERENCES statements(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_transactions_statement ON transactions(statement_id)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_normalized ON transactions(normalized_description)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Merchant memory and aliases",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS merchants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					normalized_name TEXT NOT NULL UNIQUE,
					category TEXT NOT NULL,
					subcategory TEXT,
					source TEXT NOT NULL DEFAULT 'auto',
					transaction_count INTEGER NOT NULL DEFAULT 0,
					total_amount TEXT NOT NULL DEFAULT '0',
					average_amount TEXT NOT NULL DEFAULT '0',
					last_seen DATE,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS merchant_aliases (
					alias TEXT PRIMARY KEY,
					merchant_id TEXT NOT NULL,
					FOREIGN KEY (merchant_id) REFERENCES merchants(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_merchant_aliases_merchant ON merchant_aliases(merchant_id)`,

				`CREATE TABLE IF NOT EXISTS classification_cache (
					normalized_description TEXT PRIMARY KEY,
					category TEXT NOT NULL,
					subcategory TEXT,
					source TEXT NOT NULL,
					confidence REAL NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Append-only ingestion ledger",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS ingestion_ledger (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					file_path TEXT NOT NULL,
					file_hash TEXT NOT NULL,
					file_size INTEGER NOT NULL DEFAULT 0,
					bank TEXT,
					status TEXT NOT NULL CHECK (status IN ('success', 'partial', 'error')),
					error_detail TEXT,
					statements_created INTEGER NOT NULL DEFAULT 0,
					transactions_created INTEGER NOT NULL DEFAULT 0,
					installments_created INTEGER NOT NULL DEFAULT 0,
					forced BOOLEAN NOT NULL DEFAULT 0,
					processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_ingestion_ledger_hash ON ingestion_ledger(file_hash)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Subscription tracking",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN is_recurring BOOLEAN NOT NULL DEFAULT 0`,
				`ALTER TABLE transactions ADD COLUMN is_subscription BOOLEAN NOT NULL DEFAULT 0`,
				`ALTER TABLE merchants ADD COLUMN is_subscription BOOLEAN NOT NULL DEFAULT 0`,
				`ALTER TABLE merchants ADD COLUMN subscription_cadence TEXT`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_id)`,
			)
		},
	},
	{
		Version:     5,
		Description: "Reversal and duplicate counterparts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE transactions ADD COLUMN related_transaction_id TEXT`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
