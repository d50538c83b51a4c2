package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldProcess(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	ok, err := store.ShouldProcess(ctx, "abc", false)
	require.NoError(t, err)
	assert.True(t, ok, "unseen hash should be processed")

	require.NoError(t, store.RecordOutcome(ctx, &model.LedgerEntry{
		FilePath:    "/statements/unknown.pdf",
		FileHash:    "abc",
		Status:      model.LedgerError,
		ErrorDetail: "unrecognized source document",
	}))

	ok, err = store.ShouldProcess(ctx, "abc", false)
	require.NoError(t, err)
	assert.False(t, ok, "a recorded hash is skipped whatever its status")

	ok, err = store.ShouldProcess(ctx, "abc", true)
	require.NoError(t, err)
	assert.True(t, ok, "force always processes")

	_, err = store.ShouldProcess(ctx, "", false)
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestCommitIngestion_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("h1",
		[2]string{"OXXO CENTRO", "45.00"},
		[2]string{"PAGO GRACIAS", "-5000.00"},
		[2]string{"NETFLIX MEX", "219.00"},
	)
	start := day(2025, 9, 1)
	record.Plans = []*model.InstallmentPlan{{
		ID:                 "plan-1",
		StatementID:        record.Statement.ID,
		Description:        "LIVERPOOL INSURGENTES",
		OriginalAmount:     decimal.RequireFromString("15000"),
		PendingBalance:     decimal.RequireFromString("12500"),
		MonthlyPayment:     decimal.RequireFromString("1250"),
		CurrentInstallment: 3,
		TotalInstallments:  12,
		StartDate:          &start,
		PlanType:           model.PlanInterestFree,
		Status:             model.PlanActive,
		SourceBank:         "liverpool",
	}}
	record.Transactions[2].InstallmentPlanID = "plan-1"
	record.Transactions[2].RelatedTransactionID = record.Transactions[0].ID

	require.NoError(t, store.CommitIngestion(ctx, record))
	assert.NotZero(t, record.Entry.ID)

	entry, err := store.GetLedgerEntry(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, model.LedgerSuccess, entry.Status)
	assert.Equal(t, 1, entry.StatementsCreated)
	assert.Equal(t, 3, entry.TransactionsCreated)
	assert.Equal(t, 1, entry.InstallmentsCreated)
	assert.Equal(t, int64(1024), entry.FileSize)
	assert.False(t, entry.Forced)

	st, err := store.GetStatement(ctx, record.Statement.ID)
	require.NoError(t, err)
	assert.Equal(t, "bbva", st.Bank)
	assert.Equal(t, "1234", st.AccountSuffix)
	require.NotNil(t, st.PeriodEnd)
	assert.Equal(t, "2025-11-15", st.PeriodEnd.Format("2006-01-02"))
	assert.Nil(t, st.DueDate)
	assert.True(t, st.CurrentBalance.Valid)
	assert.Equal(t, "1500.50", st.CurrentBalance.Decimal.StringFixed(2))
	assert.False(t, st.PreviousBalance.Valid, "unextracted balances stay null")
	assert.Equal(t, "264.00", st.Totals.Regular.Decimal.StringFixed(2))
	assert.Equal(t, "5000.00", st.Totals.Payments.Decimal.StringFixed(2))

	plans, err := store.GetInstallmentPlans(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 3, plans[0].CurrentInstallment)
	assert.Equal(t, "12500", plans[0].PendingBalance.String())
	require.NotNil(t, plans[0].EndDate())
	assert.Equal(t, "2026-09-01", plans[0].EndDate().Format("2006-01-02"))

	txns, err := store.GetTransactions(ctx, service.TransactionFilter{StatementID: st.ID})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "OXXO CENTRO", txns[0].Description)
	assert.Equal(t, model.KindPayment, txns[1].Kind)
	assert.Equal(t, "-5000", txns[1].Amount.String())
	assert.Equal(t, model.StatusUnclassified, txns[2].Status())
	assert.Equal(t, "plan-1", txns[2].InstallmentPlanID)
	assert.Equal(t, txns[0].ID, txns[2].RelatedTransactionID)
	assert.Empty(t, txns[0].RelatedTransactionID)
}

func TestCommitIngestion_DuplicateConflict(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CommitIngestion(ctx, testRecord("dup", [2]string{"OXXO", "45.00"})))

	err := store.CommitIngestion(ctx, testRecord("dup", [2]string{"OXXO", "45.00"}))
	var conflict *common.DuplicateLedgerConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "dup", conflict.Hash)

	// Nothing from the rejected attempt was written
	entries, err := store.ListLedgerEntries(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	statements, err := store.GetStatementsByHash(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, statements, 1)
}

func TestCommitIngestion_ReplaceCascades(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := testRecord("same", [2]string{"OXXO", "45.00"}, [2]string{"UBER TRIP", "120.00"})
	first.Plans = []*model.InstallmentPlan{{
		ID: "old-plan", StatementID: first.Statement.ID, Description: "OLD",
		PlanType: model.PlanInterestFree, Status: model.PlanActive, SourceBank: "bbva",
	}}
	require.NoError(t, store.CommitIngestion(ctx, first))

	second := testRecord("same", [2]string{"OXXO", "45.00"})
	second.Replace = true
	require.NoError(t, store.CommitIngestion(ctx, second))

	statements, err := store.GetStatementsByHash(ctx, "same")
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, second.Statement.ID, statements[0].ID)

	_, err = store.GetTransactionByID(ctx, first.Transactions[1].ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "old transactions are removed with their statement")

	plans, err := store.GetInstallmentPlans(ctx, first.Statement.ID)
	require.NoError(t, err)
	assert.Empty(t, plans)

	all, err := store.GetTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The ledger keeps both attempts, newest first
	entries, err := store.ListLedgerEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Forced)
	assert.False(t, entries[1].Forced)
}

func TestCommitIngestion_RollsBackOnFailure(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	record := testRecord("broken", [2]string{"OXXO", "45.00"}, [2]string{"OXXO", "46.00"})
	record.Transactions[1].ID = record.Transactions[0].ID

	require.Error(t, store.CommitIngestion(ctx, record))
	assert.Zero(t, record.Entry.ID)

	ok, err := store.ShouldProcess(ctx, "broken", false)
	require.NoError(t, err)
	assert.True(t, ok, "a failed commit leaves no ledger row")

	statements, err := store.GetStatementsByHash(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, statements)
}

func TestListLedgerEntries(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for _, hash := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordOutcome(ctx, &model.LedgerEntry{
			FilePath: "/in/" + hash, FileHash: hash, Status: model.LedgerError, ErrorDetail: "boom",
		}))
	}

	entries, err := store.ListLedgerEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].FileHash)
	assert.Equal(t, "b", entries[1].FileHash)
	assert.Equal(t, "boom", entries[0].ErrorDetail)

	_, err = store.GetLedgerEntry(ctx, "zzz")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.RecordOutcome(ctx, &model.LedgerEntry{FilePath: "/x", FileHash: "x", Status: "weird"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
