package extract

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dispatch(t *testing.T, name, text string) *Extraction {
	t.Helper()
	x, err := DefaultRegistry().Dispatch(document.FromText(name, text))
	require.NoError(t, err)
	require.NotNil(t, x)
	return x
}

func amounts(txns []*model.Transaction) []string {
	out := make([]string, len(txns))
	for i, t := range txns {
		out[i] = t.Amount.StringFixed(2)
	}
	return out
}

func TestRegistry_Order(t *testing.T) {
	assert.Equal(t, []string{"ofx", "hsbc", "banamex", "banorte", "liverpool", "bbva"}, DefaultRegistry().Names())
}

func TestRegistry_Detection(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "hsbc", text: hsbcStatement, want: "hsbc"},
		{name: "banamex", text: banamexStatement, want: "banamex"},
		{name: "banorte", text: banorteStatement, want: "banorte"},
		{name: "bbva", text: bbvaStatement, want: "bbva"},
		{name: "liverpool", text: liverpoolStatement, want: "liverpool"},
		{name: "ofx", text: creditCardOFX, want: "ofx"},
		{name: "bbva mention in hsbc statement", text: "HSBC MEXICO\nTransferencia a BBVA\n", want: "hsbc"},
	}

	reg := DefaultRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := reg.Detect(document.FromText(tt.name+".txt", tt.text))
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Name)
		})
	}
}

func TestRegistry_Unrecognized(t *testing.T) {
	_, err := DefaultRegistry().Dispatch(document.FromText("/in/receipt.txt", "Gracias por su compra\nTotal $120.00\n"))

	var unrecognized *common.UnrecognizedSourceError
	require.ErrorAs(t, err, &unrecognized)
	assert.Equal(t, "/in/receipt.txt", unrecognized.Path)
}

func TestRegistry_ParseFailures(t *testing.T) {
	detect := func(*document.Document) bool { return true }

	t.Run("error is wrapped", func(t *testing.T) {
		reg := NewRegistry(Extractor{
			Name:   "broken",
			Detect: detect,
			Parse: func(*document.Document) (*Extraction, error) {
				return nil, errors.New("corrupted input")
			},
		})
		_, err := reg.Dispatch(document.FromText("a.txt", "x"))

		var extractionErr *common.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, "broken", extractionErr.Bank)
		assert.Contains(t, err.Error(), "corrupted input")
	})

	t.Run("panic is recovered", func(t *testing.T) {
		reg := NewRegistry(Extractor{
			Name:   "panicky",
			Detect: detect,
			Parse: func(*document.Document) (*Extraction, error) {
				panic("index out of range")
			},
		})
		_, err := reg.Dispatch(document.FromText("a.txt", "x"))

		var extractionErr *common.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Contains(t, err.Error(), "index out of range")
	})

	t.Run("unreadable text layer", func(t *testing.T) {
		doc := document.New("hsbc.pdf", []byte("%PDF-1.4\nHSBC MEXICO"))
		_, err := HSBC().Parse(doc)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "failed to read text layer: failed to "), err.Error())
	})
}

func TestExtraction_Status(t *testing.T) {
	t.Run("missing section is partial when the period was read", func(t *testing.T) {
		x := dispatch(t, "hsbc.txt", "HSBC MEXICO\nPeriodo: 20-Nov-2025 al 19-Dic-2025\n")
		assert.Equal(t, model.LedgerPartial, x.Status())
		require.Len(t, x.Issues, 1)

		var extractionErr *common.ExtractionError
		require.ErrorAs(t, x.Issues[0], &extractionErr)
		assert.Equal(t, "transactions", extractionErr.Section)
		assert.ErrorIs(t, x.Err(), ErrSectionNotFound)
	})

	t.Run("nothing recovered is an error", func(t *testing.T) {
		x := dispatch(t, "hsbc.txt", "HSBC MEXICO\nsin movimientos\n")
		assert.Equal(t, model.LedgerError, x.Status())
		assert.NotEmpty(t, x.Issues)
	})

	t.Run("bad row keeps the rest", func(t *testing.T) {
		text := strings.Replace(hsbcStatement, "30-Nov-2025 01-Dic-2025", "31-Nov-2025 01-Dic-2025", 1)
		x := dispatch(t, "hsbc.txt", text)
		assert.Equal(t, model.LedgerPartial, x.Status())
		assert.Len(t, x.Transactions, 5)
		assert.ErrorIs(t, x.Err(), ErrInvalidDate)
	})
}

func TestDispatch_Finalize(t *testing.T) {
	doc := document.FromText("/statements/hsbc_dic.txt", hsbcStatement)
	x, err := DefaultRegistry().Dispatch(doc)
	require.NoError(t, err)

	stmt := x.Statement
	assert.NotEmpty(t, stmt.ID)
	assert.Equal(t, doc.Hash(), stmt.SourceHash)
	assert.Equal(t, "/statements/hsbc_dic.txt", stmt.SourceFile)
	assert.Contains(t, stmt.RawData, `"extractor":"hsbc"`)

	ids := map[string]bool{}
	for _, txn := range x.Transactions {
		assert.Equal(t, stmt.ID, txn.StatementID)
		assert.Equal(t, model.DefaultCurrency, txn.Currency)
		assert.False(t, ids[txn.ID], "transaction ids are unique")
		ids[txn.ID] = true
	}
	for _, p := range x.Plans {
		assert.Equal(t, stmt.ID, p.StatementID)
		assert.Equal(t, "hsbc", p.SourceBank)
	}
}

func TestDispatch_PlanStatusAndLinks(t *testing.T) {
	closing := date(2026, time.January, 12)
	start := date(2025, time.January, 5)
	plan := func(desc, monthly string) *model.InstallmentPlan {
		return &model.InstallmentPlan{
			Description:        desc,
			MonthlyPayment:     decimal.RequireFromString(monthly),
			StartDate:          &start,
			CurrentInstallment: 11,
			TotalInstallments:  12,
		}
	}
	payment := func(desc, amount string) *model.Transaction {
		return &model.Transaction{
			Date:                 date(2026, time.January, 5),
			Description:          desc,
			Amount:               decimal.RequireFromString(amount),
			IsInstallmentPayment: true,
		}
	}

	finished := plan("SALA EXPRESS", "1000.00")
	running := plan("REFRIGERADOR MABE", "750.00")
	running.TotalInstallments = 24
	running.PendingBalance = decimal.RequireFromString("9750.00")
	other := plan("LAVADORA LG", "750.00")

	byName := payment("SALA EXPRESS 12 DE 12", "1000.00")
	byAmount := payment("CARGO DIFERIDO", "1000.00")
	ambiguous := payment("MENSUALIDAD", "750.00")

	reg := NewRegistry(Extractor{
		Name:   "fixture",
		Detect: func(*document.Document) bool { return true },
		Parse: func(*document.Document) (*Extraction, error) {
			x := newExtraction("fixture", model.SourceTypeCreditCard)
			x.Statement.StatementDate = &closing
			x.Plans = []*model.InstallmentPlan{finished, running, other}
			x.Transactions = []*model.Transaction{byName, byAmount, ambiguous}
			return x, nil
		},
	})
	_, err := reg.Dispatch(document.FromText("plans.txt", "x"))
	require.NoError(t, err)

	assert.Equal(t, model.PlanCompleted, finished.Status, "ended before the statement date")
	assert.Equal(t, model.PlanActive, running.Status)
	assert.Equal(t, finished.ID, byName.InstallmentPlanID)
	assert.Equal(t, finished.ID, byAmount.InstallmentPlanID, "only one plan bills this amount")
	assert.Empty(t, ambiguous.InstallmentPlanID, "two plans bill the same amount")
}

func TestHSBC(t *testing.T) {
	x := dispatch(t, "hsbc.txt", hsbcStatement)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Empty(t, x.Issues)
	assert.Equal(t, "hsbc", stmt.Bank)
	assert.Equal(t, "9012", stmt.AccountSuffix)
	assert.Equal(t, date(2025, time.November, 20), *stmt.PeriodStart)
	assert.Equal(t, date(2025, time.December, 19), *stmt.PeriodEnd)
	assert.Equal(t, date(2025, time.December, 19), *stmt.StatementDate)
	assert.Equal(t, date(2026, time.January, 10), *stmt.DueDate)
	assert.Equal(t, "12345.67", stmt.PaymentNoInterest.Decimal.StringFixed(2))
	assert.Equal(t, "2721.44", stmt.MinimumPayment.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 6)
	assert.Equal(t, []string{"45.00", "-5000.00", "219.00", "312.40", "1299.00", "-1299.00"}, amounts(x.Transactions))
	assert.Equal(t, "OXXO ROMA", x.Transactions[0].Description)
	assert.Equal(t, date(2025, time.November, 22), *x.Transactions[0].PostDate)
	assert.Equal(t, model.KindPayment, x.Transactions[1].Kind)
	assert.Equal(t, model.KindInterest, x.Transactions[3].Kind)
	assert.True(t, x.Transactions[3].HasInterest)
	assert.Equal(t, model.KindIncome, x.Transactions[5].Kind)

	require.Len(t, x.Plans, 1)
	plan := x.Plans[0]
	assert.Equal(t, "TRASPASO DE SALDO", plan.Description)
	assert.Equal(t, model.PlanBalanceTransfer, plan.PlanType)
	assert.Equal(t, 9, plan.CurrentInstallment)
	assert.Equal(t, 24, plan.TotalInstallments)
	assert.Equal(t, "1250.00", plan.MonthlyPayment.StringFixed(2))
	assert.Equal(t, "66.00", plan.TaxThisPeriod.StringFixed(2))
	assert.Equal(t, "27.5", plan.InterestRate.String())
	assert.Equal(t, date(2027, time.March, 15), *plan.EndDate())
}

func TestBanamex(t *testing.T) {
	x := dispatch(t, "banamex.txt", banamexStatement)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Equal(t, "5678", stmt.AccountSuffix)
	assert.Equal(t, date(2025, time.November, 21), *stmt.PeriodStart)
	assert.Equal(t, date(2026, time.January, 8), *stmt.DueDate)
	assert.Equal(t, "20607.70", stmt.PaymentNoInterest.Decimal.StringFixed(2))
	assert.Equal(t, "1250.00", stmt.MinimumPayment.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 3, "summary rows are skipped")
	assert.Equal(t, []string{"89.00", "-5000.00", "219.00"}, amounts(x.Transactions))
	assert.Equal(t, model.KindPayment, x.Transactions[1].Kind)

	require.Len(t, x.Plans, 1)
	assert.Equal(t, "LIVERPOOL POLANCO", x.Plans[0].Description)
	assert.Equal(t, model.PlanInterestFree, x.Plans[0].PlanType)
	assert.Equal(t, 3, x.Plans[0].CurrentInstallment)
	assert.Equal(t, 12, x.Plans[0].TotalInstallments)
	assert.False(t, x.Plans[0].HasInterest)
}

func TestBanorte(t *testing.T) {
	x := dispatch(t, "banorte.txt", banorteStatement)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Equal(t, "6081", stmt.AccountSuffix)
	assert.Equal(t, "4450.00", stmt.MinimumPayment.Decimal.StringFixed(2))
	assert.Equal(t, "80000.00", stmt.CreditLimit.Decimal.StringFixed(2))
	assert.Equal(t, "52300.50", stmt.AvailableCredit.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 4)
	assert.Equal(t, []string{"1532.10", "2186.99", "-10000.00", "26.12"}, amounts(x.Transactions))
	assert.True(t, x.Transactions[1].IsInstallmentPayment)
	assert.Equal(t, model.KindPayment, x.Transactions[2].Kind)
	assert.Equal(t, model.KindInterest, x.Transactions[3].Kind)

	require.Len(t, x.Plans, 1)
	plan := x.Plans[0]
	assert.Equal(t, "BALANCE TRANSFER", plan.Description)
	assert.Equal(t, 19, plan.CurrentInstallment)
	assert.Equal(t, "163.28", plan.InterestThisPeriod.StringFixed(2))
	assert.Equal(t, "23.13", plan.TaxThisPeriod.StringFixed(2))
	assert.Equal(t, "1753.37", plan.MonthlyPayment.StringFixed(2))
	assert.Equal(t, "19.99", plan.InterestRate.String())
	assert.Equal(t, model.PlanActive, plan.Status)
	assert.Equal(t, plan.ID, x.Transactions[1].InstallmentPlanID, "the transfer payment pays the plan")
	assert.Empty(t, x.Transactions[0].InstallmentPlanID)
}

func TestBBVA(t *testing.T) {
	x := dispatch(t, "bbva.txt", bbvaStatement)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Equal(t, "4321", stmt.AccountSuffix)
	assert.Equal(t, date(2025, time.December, 13), *stmt.PeriodStart)
	assert.Equal(t, date(2026, time.January, 12), *stmt.PeriodEnd)
	assert.Equal(t, date(2026, time.February, 1), *stmt.DueDate)
	assert.Equal(t, "8500.00", stmt.PreviousBalance.Decimal.StringFixed(2))
	assert.Equal(t, "11230.45", stmt.CurrentBalance.Decimal.StringFixed(2))
	assert.Equal(t, "650.00", stmt.MinimumPayment.Decimal.StringFixed(2))
	assert.Equal(t, "60000.00", stmt.CreditLimit.Decimal.StringFixed(2))
	assert.Equal(t, "48769.55", stmt.AvailableCredit.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 3)
	assert.Equal(t, []string{"189.00", "500.00", "-8500.00"}, amounts(x.Transactions))
	assert.Equal(t, date(2025, time.December, 15), x.Transactions[0].Date)
	assert.Equal(t, date(2026, time.January, 3), x.Transactions[2].Date)
	assert.True(t, x.Transactions[1].IsInstallmentPayment)
	assert.Empty(t, x.Transactions[1].InstallmentPlanID, "no listed plan matches the payment")
	assert.Equal(t, model.KindPayment, x.Transactions[2].Kind)

	require.Len(t, x.Plans, 2)
	msi, financed := x.Plans[0], x.Plans[1]
	assert.Equal(t, model.PlanInterestFree, msi.PlanType)
	assert.Equal(t, "COSTCO", msi.Description)
	assert.Equal(t, date(2025, time.August, 12), *msi.StartDate)
	assert.Equal(t, 4, msi.CurrentInstallment)

	assert.Equal(t, model.PlanFinanced, financed.PlanType)
	assert.Equal(t, "PRESTAMO PERSONAL", financed.Description)
	assert.True(t, financed.HasInterest)
	assert.Equal(t, 24, financed.TotalInstallments)
	assert.Equal(t, "32.5", financed.InterestRate.String())
}

func TestLiverpool(t *testing.T) {
	x := dispatch(t, "liverpool.txt", liverpoolStatement)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Equal(t, "7788", stmt.AccountSuffix)
	assert.Equal(t, date(2025, time.November, 1), *stmt.PeriodStart)
	assert.Equal(t, date(2025, time.December, 20), *stmt.DueDate)
	assert.Equal(t, "850.00", stmt.MinimumPayment.Decimal.StringFixed(2))
	assert.Equal(t, "3420.00", stmt.PaymentNoInterest.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 2)
	assert.Equal(t, []string{"1299.00", "-2000.00"}, amounts(x.Transactions))

	require.Len(t, x.Plans, 1)
	plan := x.Plans[0]
	assert.Equal(t, "PANTALLA SAMSUNG 55", plan.Description)
	assert.Equal(t, "12500.00", plan.PendingBalance.StringFixed(2))
	assert.Equal(t, "15000.00", plan.OriginalAmount.StringFixed(2))
	assert.Nil(t, plan.EndDate(), "no start date is printed")
}

func TestOFX(t *testing.T) {
	x := dispatch(t, "amex.qfx", creditCardOFX)
	stmt := x.Statement

	assert.Equal(t, model.LedgerSuccess, x.Status())
	assert.Equal(t, model.SourceTypeCreditCard, stmt.SourceType)
	assert.Equal(t, "4321", stmt.AccountSuffix)
	assert.Equal(t, date(2025, time.November, 1), *stmt.PeriodStart)
	assert.Equal(t, date(2025, time.November, 30), *stmt.PeriodEnd)
	assert.Equal(t, "2450.00", stmt.CurrentBalance.Decimal.StringFixed(2))

	require.Len(t, x.Transactions, 3)
	assert.Equal(t, []string{"450.00", "-3000.00", "59.00"}, amounts(x.Transactions))
	assert.Equal(t, "SUPERAMA POLANCO", x.Transactions[0].Description)
	assert.Equal(t, date(2025, time.November, 5), x.Transactions[0].Date)
	assert.Equal(t, "MXN", x.Transactions[0].Currency)
	assert.Equal(t, model.KindExpense, x.Transactions[0].Kind)
	assert.Equal(t, model.KindPayment, x.Transactions[1].Kind)
	assert.Equal(t, model.KindFee, x.Transactions[2].Kind)
}

func TestOFX_Malformed(t *testing.T) {
	_, err := DefaultRegistry().Dispatch(document.FromText("bad.ofx", "OFXHEADER:100\n<OFX><garbage"))

	var extractionErr *common.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "ofx", extractionErr.Bank)
}
