package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	bbvaPeriod     = regexp.MustCompile(`(?i)PERIODO.*?(\d{2}-\p{L}{3}-\d{4}).*?AL.*?(\d{2}-\p{L}{3}-\d{4})`)
	bbvaCutDate    = regexp.MustCompile(`(?i)FECHA\s+DE\s+CORTE.*?(\d{2}-\p{L}{3}-\d{4})`)
	bbvaDueDate    = regexp.MustCompile(`(?i)FECHA\s+L[IÍ]MITE\s+DE\s+PAGO.*?(\d{2}-\p{L}{3}-\d{4})`)
	bbvaPrevious   = regexp.MustCompile(`(?i)SALDO\s+ANTERIOR.*?(` + moneyPat + `)`)
	bbvaCurrent    = regexp.MustCompile(`(?i)SALDO\s+DEUDOR\s+TOTAL.*?(` + moneyPat + `)`)
	bbvaMinimum    = regexp.MustCompile(`(?i)PAGO\s+M[IÍ]NIMO.*?(` + moneyPat + `)`)
	bbvaNoInterest = regexp.MustCompile(`(?i)PAGO\s+PARA\s+NO\s+GENERAR\s+INTERESES.*?(` + moneyPat + `)`)
	bbvaLimit      = regexp.MustCompile(`(?i)L[IÍ]MITE\s+DE\s+CR[EÉ]DITO.*?(` + moneyPat + `)`)
	bbvaAvailable  = regexp.MustCompile(`(?i)CR[EÉ]DITO\s+DISPONIBLE.*?(` + moneyPat + `)`)
	bbvaAccount    = regexp.MustCompile(`TARJETA.*?(\d{4})`)

	bbvaOpsStart   = regexp.MustCompile(`(?i)OPERACIONES\s+DEL\s+PERIODO|FECHA\s+OPERACI[OÓ]N`)
	bbvaOpsEnd     = regexp.MustCompile(`(?i)COMPRAS\s+A\s+MESES|RESUMEN`)
	bbvaMSIStart   = regexp.MustCompile(`(?i)COMPRAS\s+A\s+MESES\s+SIN\s+INTERESES`)
	bbvaMSIEnd     = regexp.MustCompile(`(?i)COMPRAS/DISPOSICIONES\s+A\s+MESES|TOTAL`)
	bbvaFinStart   = regexp.MustCompile(`(?i)COMPRAS/DISPOSICIONES\s+A\s+MESES(?:\s+CON\s+INTERESES)?\s*$`)
	bbvaSectionEnd = regexp.MustCompile(`(?i)TOTAL`)

	// 05-NOV 06-NOV UBER EATS $ 189.00
	bbvaRow = regexp.MustCompile(`(?i)^(` + shortDatePat + `)\s+(` + shortDatePat + `)\s+(.+?)\s+([+-]?\s*\$?\s*[\d,]+\.\d{2})\s*$`)
	// 12-AGO COSTCO $ 9,000.00 $ 6,000.00 $ 750.00 4 DE 12
	bbvaMSI = regexp.MustCompile(`(?i)^(` + shortDatePat + `)\s+(.+?)\s+` +
		`\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+(\d+)\s+DE\s+(\d+)`)
	bbvaFinanced = regexp.MustCompile(`(?i)^(` + shortDatePat + `)\s+(.+?)\s+` +
		`\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})` +
		`(?:\s+(\d+)\s+DE\s+(\d+))?(?:\s+([\d.]+)%)?`)
)

// BBVA extracts BBVA Mexico credit card statements. Rows only carry day and
// month, so the year is taken from the billing period.
func BBVA() Extractor {
	return Extractor{
		Name: "bbva",
		Detect: func(doc *document.Document) bool {
			return doc.ContainsFold("BBVA")
		},
		Parse: parseBBVA,
	}
}

func parseBBVA(doc *document.Document) (*Extraction, error) {
	s, err := readStatement(doc, "bbva", model.SourceTypeCreditCard)
	if err != nil {
		return nil, err
	}

	stmt := s.Statement
	s.period(bbvaPeriod)
	s.date(bbvaCutDate, &stmt.StatementDate)
	s.date(bbvaDueDate, &stmt.DueDate)
	s.amount(&stmt.PreviousBalance, bbvaPrevious)
	s.amount(&stmt.CurrentBalance, bbvaCurrent)
	s.amount(&stmt.MinimumPayment, bbvaMinimum)
	s.amount(&stmt.PaymentNoInterest, bbvaNoInterest)
	s.amount(&stmt.CreditLimit, bbvaLimit)
	s.amount(&stmt.AvailableCredit, bbvaAvailable)
	s.accountSuffix(bbvaAccount)

	ref := s.referenceDate()
	s.bbvaOperations(ref)
	s.bbvaInterestFree(ref)
	s.bbvaFinanced(ref)

	return s.Extraction, nil
}

func (s *statementText) referenceDate() time.Time {
	switch {
	case s.Statement.PeriodEnd != nil:
		return *s.Statement.PeriodEnd
	case s.Statement.StatementDate != nil:
		return *s.Statement.StatementDate
	default:
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func (s *statementText) bbvaOperations(ref time.Time) {
	lines, ok := s.between(bbvaOpsStart, bbvaOpsEnd)
	if !ok {
		s.AddIssue("transactions", ErrSectionNotFound)
		return
	}

	for _, line := range lines {
		m := bbvaRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, err := ParseDayMonth(m[1], ref)
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}
		post, err := ParseDayMonth(m[2], ref)
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}
		amount, err := ParseAmount(m[4])
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}

		t := s.addTransaction(date, &post, m[3], amount)
		if t.Kind == model.KindPayment {
			t.Amount = asPayment(t.Amount)
		}
	}
}

func (s *statementText) bbvaInterestFree(ref time.Time) {
	lines, ok := s.between(bbvaMSIStart, bbvaMSIEnd)
	if !ok {
		return
	}

	for _, line := range lines {
		m := bbvaMSI.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := ParseDayMonth(m[1], ref)
		if err != nil {
			s.rowIssue("installments", line, err)
			continue
		}
		s.Plans = append(s.Plans, &model.InstallmentPlan{
			StartDate:          &start,
			Description:        strings.TrimSpace(m[2]),
			OriginalAmount:     mustAmount(m[3]),
			PendingBalance:     mustAmount(m[4]),
			MonthlyPayment:     mustAmount(m[5]),
			CurrentInstallment: atoi(m[6]),
			TotalInstallments:  atoi(m[7]),
			InterestRate:       decimal.Zero,
			PlanType:           model.PlanInterestFree,
		})
	}
}

func (s *statementText) bbvaFinanced(ref time.Time) {
	lines, ok := s.between(bbvaFinStart, bbvaSectionEnd)
	if !ok {
		return
	}

	for _, line := range lines {
		if containsAny(line, "EFECTIVO INMEDIATO") {
			continue
		}
		m := bbvaFinanced.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := ParseDayMonth(m[1], ref)
		if err != nil {
			s.rowIssue("installments", line, err)
			continue
		}

		plan := &model.InstallmentPlan{
			StartDate:          &start,
			Description:        strings.TrimSpace(m[2]),
			OriginalAmount:     mustAmount(m[3]),
			PendingBalance:     mustAmount(m[4]),
			MonthlyPayment:     mustAmount(m[5]),
			CurrentInstallment: atoi(m[6]),
			TotalInstallments:  atoi(m[7]),
			HasInterest:        true,
			PlanType:           model.PlanFinanced,
		}
		if m[8] != "" {
			if rate, err := decimal.NewFromString(m[8]); err == nil {
				plan.InterestRate = rate
			}
		}
		s.Plans = append(s.Plans, plan)
	}
}
