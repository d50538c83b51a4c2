package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testTxn(statementID, description, amount string, date time.Time) *model.Transaction {
	return &model.Transaction{
		ID:                    uuid.NewString(),
		StatementID:           statementID,
		Date:                  date,
		Description:           description,
		NormalizedDescription: normalize.Description(description),
		Amount:                decimal.RequireFromString(amount),
		Currency:              model.DefaultCurrency,
		Kind:                  normalize.Kind(description),
	}
}

// testRecord builds an ingestion record for a document hash with the given
// transaction descriptions and amounts.
func testRecord(hash string, rows ...[2]string) *service.IngestionRecord {
	start, end := day(2025, time.October, 16), day(2025, time.November, 15)
	st := &model.Statement{
		ID:             uuid.NewString(),
		Bank:           "bbva",
		SourceType:     model.SourceTypeCreditCard,
		AccountSuffix:  "1234",
		PeriodStart:    &start,
		PeriodEnd:      &end,
		CurrentBalance: decimal.NewNullDecimal(decimal.RequireFromString("1500.50")),
		SourceFile:     "/statements/" + hash + ".pdf",
		SourceHash:     hash,
	}

	var txns []*model.Transaction
	for i, row := range rows {
		txns = append(txns, testTxn(st.ID, row[0], row[1], start.AddDate(0, 0, i+1)))
	}
	st.ComputeTotals(txns, nil)

	return &service.IngestionRecord{
		Statement:    st,
		Transactions: txns,
		Entry: model.LedgerEntry{
			FilePath: st.SourceFile,
			FileHash: hash,
			FileSize: 1024,
			Bank:     "bbva",
			Status:   model.LedgerSuccess,
		},
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.ErrorIs(t, err, ErrEmptyString)

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))

	var fk int
	require.NoError(t, store.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	_, err = store.NewCheckpointManager()
	assert.ErrorIs(t, err, ErrCheckpointUnsupported)
}

func TestMigrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Running again is a no-op
	require.NoError(t, store.Migrate(ctx))

	for _, table := range []string{"statements", "transactions", "installment_plans", "merchants",
		"merchant_aliases", "classification_cache", "ingestion_ledger"} {
		var count int
		err := store.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

func TestMigrate_VersionsAreSequential(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
	}
	assert.Equal(t, len(migrations), ExpectedSchemaVersion)
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "abc"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "  \t", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.input, "param")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrEmptyString)
				assert.Contains(t, err.Error(), "param")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateIngestion(t *testing.T) {
	tests := []struct {
		mutate  func(r *service.IngestionRecord)
		wantErr error
		name    string
	}{
		{name: "valid", mutate: func(*service.IngestionRecord) {}},
		{name: "nil statement", mutate: func(r *service.IngestionRecord) { r.Statement = nil }, wantErr: ErrNilParameter},
		{name: "error status", mutate: func(r *service.IngestionRecord) { r.Entry.Status = model.LedgerError }, wantErr: ErrInvalidStatus},
		{name: "unknown status", mutate: func(r *service.IngestionRecord) { r.Entry.Status = "done" }, wantErr: ErrInvalidStatus},
		{name: "hash mismatch", mutate: func(r *service.IngestionRecord) { r.Statement.SourceHash = "other" }, wantErr: ErrInvalidStatement},
		{name: "transaction without description", mutate: func(r *service.IngestionRecord) { r.Transactions[0].Description = "" }, wantErr: ErrInvalidTransaction},
		{name: "confidence out of range", mutate: func(r *service.IngestionRecord) { r.Transactions[0].Classification.Confidence = 1.5 }, wantErr: ErrInvalidConfidence},
		{
			name: "plan past its last installment",
			mutate: func(r *service.IngestionRecord) {
				r.Plans = []*model.InstallmentPlan{{ID: "p1", CurrentInstallment: 7, TotalInstallments: 6}}
			},
			wantErr: model.ErrInvalidInstallment,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord("hash", [2]string{"OXXO CENTRO", "45.00"})
			tt.mutate(record)
			err := validateIngestion(record)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
