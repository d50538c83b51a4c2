package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement account types.
const (
	SourceTypeCreditCard = "credit_card"
	SourceTypeDebit      = "debit"
	SourceTypeChecking   = "checking"
)

// StatementTotals aggregates the transactions and plans of a statement.
type StatementTotals struct {
	Regular      decimal.NullDecimal
	Installments decimal.NullDecimal
	Interest     decimal.NullDecimal
	Fees         decimal.NullDecimal
	Payments     decimal.NullDecimal
}

// Statement is the record produced for one source document. Balance and
// total fields stay null when the extractor could not read them.
type Statement struct {
	CreatedAt         time.Time
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	StatementDate     *time.Time
	DueDate           *time.Time
	PreviousBalance   decimal.NullDecimal
	CurrentBalance    decimal.NullDecimal
	MinimumPayment    decimal.NullDecimal
	PaymentNoInterest decimal.NullDecimal
	CreditLimit       decimal.NullDecimal
	AvailableCredit   decimal.NullDecimal
	Totals            StatementTotals
	ID                string
	Bank              string
	SourceType        string
	AccountSuffix     string
	SourceFile        string
	SourceHash        string
	RawData           string
}

// HasValidPeriod reports whether a billing period was extracted.
func (s *Statement) HasValidPeriod() bool {
	return s.PeriodStart != nil && s.PeriodEnd != nil && !s.PeriodEnd.Before(*s.PeriodStart)
}

// ReferenceYear is the year used to complete dates printed without one.
func (s *Statement) ReferenceYear() int {
	switch {
	case s.PeriodEnd != nil:
		return s.PeriodEnd.Year()
	case s.StatementDate != nil:
		return s.StatementDate.Year()
	default:
		return time.Now().Year()
	}
}

// ComputeTotals recalculates the aggregate totals from the statement's
// transactions and installment plans. Reversals and duplicates are left out.
func (s *Statement) ComputeTotals(txns []*Transaction, plans []*InstallmentPlan) {
	var regular, installments, interest, fees, payments decimal.Decimal

	for _, t := range txns {
		if t.IsReversal || t.IsDuplicate {
			continue
		}
		switch t.Kind {
		case KindPayment:
			payments = payments.Add(t.Amount.Abs())
		case KindInterest:
			interest = interest.Add(t.Amount)
		case KindFee:
			fees = fees.Add(t.Amount)
		case KindExpense, KindIncome, KindReversal:
			if !t.IsInstallmentPayment {
				regular = regular.Add(t.Amount)
			}
		}
	}

	for _, p := range plans {
		installments = installments.Add(p.MonthlyPayment)
	}

	s.Totals = StatementTotals{
		Regular:      decimal.NewNullDecimal(regular),
		Installments: decimal.NewNullDecimal(installments),
		Interest:     decimal.NewNullDecimal(interest),
		Fees:         decimal.NewNullDecimal(fees),
		Payments:     decimal.NewNullDecimal(payments),
	}
}
