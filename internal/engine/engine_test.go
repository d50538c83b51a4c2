package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/rules"
	"github.com/norkodev/finbot/internal/service"
	"github.com/norkodev/finbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestEngine(t *testing.T, db *testutil.TestDB, classifier Classifier, opts Options) *ClassificationEngine {
	t.Helper()
	return New(db.Storage, rules.Default().Matcher(), classifier, opts, nil)
}

func txn(desc, amount string, day int) *model.Transaction {
	return testutil.NewTransaction(desc, amount, testutil.Date(2025, time.October, day))
}

func TestClassify_TierPrecedence(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.CommonMerchants()...)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())

	oxxo := txn("OXXO", "45.00", 1)
	uber := txn("UBER TRIP HELP.UBER.COM", "120.00", 2)
	farmacia := txn("FARMACIA BENAVIDES", "310.00", 3)
	tacos := txn("TAQUERIA EL PASTOR", "180.00", 4)

	summary, err := eng.Classify(context.Background(), []*model.Transaction{oxxo, uber, farmacia, tacos})
	require.NoError(t, err)

	assert.Equal(t, model.SourceMerchantHistory, oxxo.Classification.Source, "merchant memory beats the OXXO rule")
	assert.Equal(t, "gastos_hormiga", oxxo.Category)
	assert.InDelta(t, 1.0, oxxo.Classification.Confidence, 0.0001)

	assert.Equal(t, model.SourceMerchantHistory, uber.Classification.Source, "found through an alias")
	assert.Equal(t, "transporte", uber.Category)
	assert.Equal(t, db.MustGetMerchant("UBER").ID, uber.MerchantID)

	assert.Equal(t, model.SourceRules, farmacia.Classification.Source)
	assert.Equal(t, "salud", farmacia.Category)
	assert.Equal(t, "farmacia", farmacia.Subcategory)
	assert.InDelta(t, 0.9, farmacia.Classification.Confidence, 0.0001)

	assert.Equal(t, model.SourceLLM, tacos.Classification.Source)
	assert.Equal(t, "restaurantes", tacos.Subcategory)

	assert.Equal(t, Summary{
		Total:            4,
		ByMerchant:       2,
		ByRules:          1,
		ByLLM:            1,
		MerchantsLearned: 2,
	}, summary)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Items, 1)
	assert.Equal(t, "TAQUERIA EL PASTOR", calls[0].Items[0].Description)
}

func TestClassify_LearnsFromRulesAndAI(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())
	ctx := context.Background()

	first := txn("FARMACIA BENAVIDES", "310.00", 1)
	second := txn("FARMACIA BENAVIDES", "95.00", 9)
	tacos := txn("TAQUERIA EL PASTOR", "180.00", 4)

	summary, err := eng.Classify(ctx, []*model.Transaction{first, second, tacos})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByRules)
	assert.Equal(t, 1, summary.ByMerchant, "the merchant learned from the first row serves the second")
	assert.Equal(t, model.SourceMerchantHistory, second.Classification.Source)

	learned := db.MustGetMerchant("TAQUERIA EL PASTOR")
	assert.Equal(t, model.MerchantSourceAuto, learned.Source)
	assert.Equal(t, "alimentacion", learned.Category)
	assert.Equal(t, learned.ID, tacos.MerchantID)

	entry, err := db.Storage.GetCachedClassification(ctx, "TAQUERIA EL PASTOR")
	require.NoError(t, err)
	assert.Equal(t, model.SourceLLM, entry.Source)

	mock.Reset()
	again := txn("Taqueria El Pastor", "90.00", 20)
	summary, err = eng.Classify(ctx, []*model.Transaction{again})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByMerchant)
	assert.Empty(t, mock.Calls(), "learned merchants are not sent to the AI again")
}

func TestClassify_Cache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Storage.SaveCachedClassification(ctx, &model.ClassificationCacheEntry{
		NormalizedDescription: "LIBRERIA GANDHI",
		Category:              "compras",
		Subcategory:           "tiendas",
		Source:                model.SourceLLM,
		Confidence:            0.7,
	}))

	t.Run("hit", func(t *testing.T) {
		mock := NewMockClassifier()
		eng := newTestEngine(t, db, mock, DefaultOptions())

		gandhi := txn("Librería Gandhi", "250.00", 1)
		summary, err := eng.Classify(ctx, []*model.Transaction{gandhi})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ByCache)
		assert.Equal(t, "compras", gandhi.Category)
		assert.InDelta(t, 0.7, gandhi.Classification.Confidence, 0.0001)
		assert.Empty(t, mock.Calls())
	})

	t.Run("disabled", func(t *testing.T) {
		mock := NewMockClassifier()
		opts := DefaultOptions()
		opts.UseCache = false
		eng := newTestEngine(t, db, mock, opts)

		gandhi := txn("Librería Gandhi", "250.00", 1)
		summary, err := eng.Classify(ctx, []*model.Transaction{gandhi})
		require.NoError(t, err)
		assert.Zero(t, summary.ByCache)
		assert.Equal(t, 1, summary.ByLLM)
		assert.Len(t, mock.Calls(), 1)
	})
}

func TestClassify_ResolvedRows(t *testing.T) {
	db := testutil.SetupTestDB(t)

	tests := []struct {
		name         string
		source       model.ClassificationSource
		wantCategory string
		force        bool
	}{
		{name: "manual is never touched", source: model.SourceManual, force: true, wantCategory: "compras"},
		{name: "resolved is skipped", source: model.SourceLLM, wantCategory: "compras"},
		{name: "force re-resolves", source: model.SourceLLM, force: true, wantCategory: "gastos_hormiga"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockClassifier()
			opts := DefaultOptions()
			opts.Force = tt.force
			eng := newTestEngine(t, db, mock, opts)

			oxxo := txn("OXXO REFORMA", "45.00", 1)
			oxxo.Resolve("compras", "tiendas", tt.source, 0.4)

			summary, err := eng.Classify(context.Background(), []*model.Transaction{oxxo})
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, oxxo.Category)
			if tt.wantCategory == "compras" {
				assert.Equal(t, 1, summary.Skipped)
				assert.Equal(t, tt.source, oxxo.Classification.Source)
			}
			assert.Empty(t, mock.Calls())
		})
	}
}

// Ten transactions, four matching rules: the other six go to the AI tier
// in a single batch.
func batchScenario() []*model.Transaction {
	return []*model.Transaction{
		txn("PEMEX ESTACION 4521", "800.00", 1),
		txn("SPOTIFY", "129.00", 2),
		txn("CINEPOLIS PLAZA", "180.00", 3),
		txn("TELCEL RECARGA", "200.00", 4),
		txn("TACOS EL GUERO", "150.00", 5),
		txn("HOSPITAL ANGELES", "2500.00", 6),
		txn("LIBRERIA GANDHI", "320.00", 7),
		txn("ESTACIONAMIENTO CENTRO", "40.00", 8),
		txn("PAPELERIA LUNA", "75.00", 9),
		txn("VETERINARIA PATITAS", "600.00", 10),
	}
}

func TestClassify_BatchesUnresolved(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())

	txns := batchScenario()
	summary, err := eng.Classify(context.Background(), txns)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.ByRules)
	assert.Equal(t, 6, summary.ByLLM)
	assert.Zero(t, summary.Unclassified)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0].Items, 6)
	for _, t2 := range txns {
		assert.Equal(t, model.StatusResolved, t2.Status(), t2.Description)
	}
}

func TestClassify_BatchSizeAndWorkers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	opts := DefaultOptions()
	opts.BatchSize = 4
	opts.Workers = 3
	eng := newTestEngine(t, db, mock, opts)

	summary, err := eng.Classify(context.Background(), batchScenario())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.ByLLM)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.LessOrEqual(t, len(call.Items), 4)
	}
	assert.Equal(t, 6, mock.ItemCount())
}

func TestClassify_BatchTimeoutLeavesRowsUnclassified(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	mock.Delay = time.Second
	opts := DefaultOptions()
	opts.BatchTimeout = 20 * time.Millisecond
	eng := newTestEngine(t, db, mock, opts)

	txns := batchScenario()
	start := time.Now()
	summary, err := eng.Classify(context.Background(), txns)
	require.NoError(t, err, "a failed batch never aborts the run")
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, 4, summary.ByRules)
	assert.Zero(t, summary.ByLLM)
	assert.Equal(t, 6, summary.Unclassified)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.False(t, summary.AIUnavailable)

	for _, t2 := range txns[4:] {
		assert.Equal(t, model.StatusUnclassified, t2.Status())
		assert.Empty(t, t2.Category)
	}
}

func TestClassify_ServiceUnavailableDegradesToRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	mock.Err = common.Permanent(&common.ClassificationServiceUnavailableError{Provider: "ollama", Err: errors.New("connection refused")})
	opts := DefaultOptions()
	opts.BatchSize = 2
	opts.Workers = 1
	eng := newTestEngine(t, db, mock, opts)
	ctx := context.Background()

	summary, err := eng.Classify(ctx, batchScenario())
	require.NoError(t, err)
	assert.True(t, summary.AIUnavailable)
	assert.True(t, eng.AIUnavailable())
	assert.Equal(t, 4, summary.ByRules)
	assert.Equal(t, 6, summary.Unclassified)
	assert.Len(t, mock.Calls(), 1, "remaining batches are not attempted")

	summary, err = eng.Classify(ctx, []*model.Transaction{txn("TACOS DON JUAN", "90.00", 12)})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Unclassified)
	assert.Len(t, mock.Calls(), 1, "the rest of the run is rules only")
}

func TestClassify_BatchFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	mock.Err = errors.New("boom")
	opts := DefaultOptions()
	opts.BatchSize = 3
	eng := newTestEngine(t, db, mock, opts)

	summary, err := eng.Classify(context.Background(), batchScenario())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.FailedBatches)
	assert.False(t, summary.AIUnavailable)
	assert.Equal(t, 6, summary.Unclassified)
}

func TestClassify_SkipAIAndNilClassifier(t *testing.T) {
	db := testutil.SetupTestDB(t)

	mock := NewMockClassifier()
	opts := DefaultOptions()
	opts.SkipAI = true
	summary, err := newTestEngine(t, db, mock, opts).Classify(context.Background(), batchScenario())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Unclassified)
	assert.Empty(t, mock.Calls())

	summary, err = New(db.Storage, nil, nil, Options{}, nil).Classify(context.Background(), batchScenario())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.ByMerchant, "merchants learned by the previous run")
	assert.Equal(t, 6, summary.Unclassified)
}

func TestClassify_GroupsByDescription(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())

	a := txn("TACOS EL GUERO", "150.00", 1)
	b := txn("TACOS EL GUERO", "80.00", 15)
	dup := txn("TACOS EL GUERO", "150.00", 2)
	dup.IsDuplicate = true

	summary, err := eng.Classify(context.Background(), []*model.Transaction{a, b, dup})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ByLLM)
	assert.Equal(t, 1, mock.ItemCount(), "one item per distinct description")
	assert.Equal(t, "alimentacion", b.Category)
	assert.Equal(t, model.StatusUnclassified, dup.Status())
}

func TestClassify_ReversalsUseLocalTiersOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())

	charge := txn("FARMACIA BENAVIDES", "310.00", 1)
	refund := txn("FARMACIA BENAVIDES", "-310.00", 3)
	tacos := txn("TACOS EL GUERO", "150.00", 5)
	refundedTacos := txn("TACOS EL GUERO", "-150.00", 6)
	for _, r := range []*model.Transaction{charge, refund, tacos, refundedTacos} {
		r.IsReversal = true
	}

	summary, err := eng.Classify(context.Background(), []*model.Transaction{charge, refund, tacos, refundedTacos})
	require.NoError(t, err)

	assert.Equal(t, model.SourceRules, charge.Classification.Source)
	assert.Equal(t, model.SourceMerchantHistory, refund.Classification.Source)
	assert.Equal(t, model.StatusUnclassified, tacos.Status())
	assert.Equal(t, model.StatusUnclassified, refundedTacos.Status())
	assert.Equal(t, 2, summary.Unclassified)
	assert.Zero(t, summary.ByLLM)
	assert.Empty(t, mock.Calls())
}

func TestClassifyForIngestion_LearnsOnCommit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, DefaultOptions())
	ctx := context.Background()

	first := txn("FARMACIA BENAVIDES", "310.00", 1)
	second := txn("FARMACIA BENAVIDES", "95.00", 9)
	tacos := txn("TAQUERIA EL PASTOR", "180.00", 4)
	txns := []*model.Transaction{first, second, tacos}

	summary, learned, err := eng.ClassifyForIngestion(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByRules)
	assert.Equal(t, 1, summary.ByMerchant, "pending memory serves the second row")
	assert.Equal(t, 1, summary.ByLLM)
	assert.Equal(t, 2, summary.MerchantsLearned)
	require.Len(t, learned, 2)
	assert.Len(t, learned[0].Transactions, 2)

	_, err = db.Storage.GetMerchant(ctx, "FARMACIA BENAVIDES")
	assert.ErrorIs(t, err, common.ErrNotFound, "nothing is written before the commit")
	_, err = db.Storage.GetCachedClassification(ctx, "TAQUERIA EL PASTOR")
	assert.ErrorIs(t, err, common.ErrNotFound)

	record := testutil.NewIngestionRecord("learned", txns...)
	record.Learned = learned
	require.NoError(t, db.Storage.CommitIngestion(ctx, record))

	farmacia := db.MustGetMerchant("FARMACIA BENAVIDES")
	assert.Equal(t, "salud", farmacia.Category)
	stored, err := db.Storage.GetTransactionByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, farmacia.ID, stored.MerchantID)

	entry, err := db.Storage.GetCachedClassification(ctx, "TAQUERIA EL PASTOR")
	require.NoError(t, err)
	assert.Equal(t, model.SourceLLM, entry.Source)

	cine := txn("CINEPOLIS PERISUR", "240.00", 12)
	_, learned, err = eng.ClassifyForIngestion(ctx, []*model.Transaction{cine})
	require.NoError(t, err)
	require.Len(t, learned, 1)

	conflicting := testutil.NewIngestionRecord("learned", cine)
	conflicting.Learned = learned
	var conflict *common.DuplicateLedgerConflictError
	require.ErrorAs(t, db.Storage.CommitIngestion(ctx, conflicting), &conflict)

	_, err = db.Storage.GetMerchant(ctx, learned[0].Merchant.NormalizedName)
	assert.ErrorIs(t, err, common.ErrNotFound, "a rejected statement teaches nothing")
	_, err = db.Storage.GetCachedClassification(ctx, cine.NormalizedDescription)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestClassify_WorkersBoundSharedAcrossCalls(t *testing.T) {
	db := testutil.SetupTestDB(t)
	mock := NewMockClassifier()
	mock.Delay = 20 * time.Millisecond

	opts := DefaultOptions()
	opts.BatchSize = 1
	opts.Workers = 2
	eng := newTestEngine(t, db, mock, opts)

	names := [][]string{
		{"TAQUERIA ALFA", "TAQUERIA BRAVO", "TAQUERIA CHARLIE"},
		{"LIBRERIA DELTA", "LIBRERIA ECO", "LIBRERIA FOXTROT"},
		{"HOSPITAL GOLF", "HOSPITAL HOTEL", "HOSPITAL INDIA"},
	}

	var g errgroup.Group
	for _, group := range names {
		g.Go(func() error {
			txns := make([]*model.Transaction, len(group))
			for i, name := range group {
				txns[i] = txn(name, "100.00", i+1)
			}
			_, _, err := eng.ClassifyForIngestion(context.Background(), txns)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 9, mock.ItemCount())
	assert.LessOrEqual(t, mock.MaxInFlight(), 2, "documents share one bound on AI batches")
}

func TestClassify_Canceled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	eng := newTestEngine(t, db, NewMockClassifier(), DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.Classify(ctx, batchScenario())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyStored(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	txns := batchScenario()
	record := testutil.NewIngestionRecord("stored", txns...)
	require.NoError(t, db.Storage.CommitIngestion(ctx, record))

	_, err := db.Storage.ApplyCorrection(ctx, service.Correction{
		TransactionID: txns[9].ID,
		Category:      "otros",
	})
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Force = true
	mock := NewMockClassifier()
	eng := newTestEngine(t, db, mock, opts)

	summary, err := eng.ClassifyStored(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Total, "manual rows are not loaded")
	assert.Equal(t, 9, summary.Persisted)
	assert.Equal(t, 4, summary.ByRules)
	assert.Equal(t, 5, summary.ByLLM)

	stored, err := db.Storage.GetTransactionByID(ctx, txns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "transporte", stored.Category)
	assert.Equal(t, "gasolina", stored.Subcategory)
	assert.Equal(t, model.SourceRules, stored.Classification.Source)

	manual, err := db.Storage.GetTransactionByID(ctx, txns[9].ID)
	require.NoError(t, err)
	assert.Equal(t, model.SourceManual, manual.Classification.Source)
	assert.Equal(t, "otros", manual.Category)

	summary, err = eng.ClassifyStored(ctx, service.TransactionFilter{UnclassifiedOnly: true})
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}
