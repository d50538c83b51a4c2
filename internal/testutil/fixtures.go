package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// CommonMerchants returns merchant memory for a handful of well known
// Mexican merchants. The first one is a manual correction.
func CommonMerchants() []model.Merchant {
	return []model.Merchant{
		{Name: "Oxxo", NormalizedName: "OXXO", Category: "gastos_hormiga", Subcategory: "conveniencia", Source: model.MerchantSourceManual},
		{Name: "Uber", NormalizedName: "UBER", Category: "transporte", Subcategory: "rideshare", Source: model.MerchantSourceAuto, Aliases: []string{"UBER TRIP HELP UBER COM"}},
		{Name: "Netflix", NormalizedName: "NETFLIX", Category: "entretenimiento", Subcategory: "streaming", Source: model.MerchantSourceAuto},
		{Name: "Walmart", NormalizedName: "WALMART", Category: "alimentacion", Subcategory: "supermercado", Source: model.MerchantSourceAuto},
	}
}

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NewTransaction builds an unclassified transaction the way extractors do.
// It panics on an invalid amount.
func NewTransaction(description, amount string, date time.Time) *model.Transaction {
	txn := &model.Transaction{
		ID:                    uuid.NewString(),
		Date:                  date,
		Description:           description,
		NormalizedDescription: normalize.Description(description),
		Amount:                decimal.RequireFromString(amount),
		Currency:              model.DefaultCurrency,
		Kind:                  normalize.Kind(description),
	}
	if txn.Kind == model.KindExpense && txn.Amount.IsNegative() {
		txn.Kind = model.KindIncome
	}
	return txn
}

// NewIngestionRecord wraps transactions in a credit card statement for the
// given document hash, ready for CommitIngestion.
func NewIngestionRecord(hash string, txns ...*model.Transaction) *service.IngestionRecord {
	st := &model.Statement{
		ID:            uuid.NewString(),
		Bank:          "bbva",
		SourceType:    model.SourceTypeCreditCard,
		AccountSuffix: "1234",
		SourceFile:    "/statements/" + hash + ".pdf",
		SourceHash:    hash,
	}
	for _, txn := range txns {
		txn.StatementID = st.ID
	}
	st.ComputeTotals(txns, nil)

	return &service.IngestionRecord{
		Statement:    st,
		Transactions: txns,
		Entry: model.LedgerEntry{
			FilePath:            st.SourceFile,
			FileHash:            hash,
			Bank:                st.Bank,
			Status:              model.LedgerSuccess,
			StatementsCreated:   1,
			TransactionsCreated: len(txns),
		},
	}
}
