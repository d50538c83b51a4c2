// Package testutil provides shared fixtures for tests that need a migrated
// database, seeded merchant memory or canonical transactions.
package testutil

import (
	"context"
	"testing"

	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage   *storage.SQLiteStorage
	t         *testing.T
	Merchants []model.Merchant
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Merchants      []model.Merchant
	SkipMigrations bool
}

// SetupTestDB creates a new in-memory test database seeded with the given
// merchants. Migrations and cleanup are handled automatically.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.CommonMerchants()...)
func SetupTestDB(t *testing.T, merchants ...model.Merchant) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Merchants: merchants})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	seeded := make([]model.Merchant, 0, len(opts.Merchants))
	for _, m := range opts.Merchants {
		merchant := m
		if err := store.SaveMerchant(ctx, &merchant); err != nil {
			t.Fatalf("failed to seed merchant %q: %v", m.NormalizedName, err)
		}
		seeded = append(seeded, merchant)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage:   store,
		Merchants: seeded,
		t:         t,
	}
}

// MustGetMerchant returns the stored merchant with the given normalized name
// or fails the test.
func (db *TestDB) MustGetMerchant(normalizedName string) *model.Merchant {
	db.t.Helper()
	m, err := db.Storage.GetMerchant(context.Background(), normalizedName)
	if err != nil {
		db.t.Fatalf("merchant %q not found: %v", normalizedName, err)
	}
	return m
}
