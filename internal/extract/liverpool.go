package extract

import (
	"regexp"
	"strings"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
)

const numericDatePat = `\d{2}/\d{2}/\d{4}`

var (
	liverpoolPeriod     = regexp.MustCompile(`(?i)Periodo:?\s*(` + numericDatePat + `)\s*(?:al|a)\s*(` + numericDatePat + `)`)
	liverpoolPeriodAlt  = regexp.MustCompile(`(?i)Del\s+(` + numericDatePat + `)\s+al\s+(` + numericDatePat + `)`)
	liverpoolCutDate    = regexp.MustCompile(`(?i)Fecha\s+de\s+corte:?\s*(` + numericDatePat + `)`)
	liverpoolDueDate    = regexp.MustCompile(`(?i)Fecha\s+l[ií]mite\s+de\s+pago:?\s*(` + numericDatePat + `)`)
	liverpoolMinimum    = regexp.MustCompile(`(?i)Pago\s+m[ií]nimo[:\s]*\$?\s*([\d,]+\.\d{2})`)
	liverpoolNoInterest = regexp.MustCompile(`(?i)Pago\s+(?:total|para\s+no\s+generar\s+intereses)[:\s]*\$?\s*([\d,]+\.\d{2})`)
	liverpoolCard       = regexp.MustCompile(`[Tt]arjeta[:\s]*([*\d ]*\d{4})`)
	liverpoolAccount    = regexp.MustCompile(`[Cc]uenta[:\s]*([*\d ]*\d{4})`)

	// 12/11/2025 PALACIO DE HIERRO $1,299.00
	liverpoolRow = regexp.MustCompile(`^(` + numericDatePat + `)\s+(.+?)\s+([+-]?)\s*\$?\s*([\d,]+\.\d{2})\s*$`)
	// PANTALLA SAMSUNG 55 3 de 12 MESES $1,250.00
	liverpoolPlan = regexp.MustCompile(`(?i)^(?:` + numericDatePat + `\s+)?(.+?)\s+(\d+)\s+de\s+(\d+)\s+MESES\s+\$?\s*([\d,]+\.\d{2})`)
)

// Liverpool extracts Liverpool department store credit statements. These
// are image documents, so the text comes from an external OCR step.
func Liverpool() Extractor {
	return Extractor{
		Name: "liverpool",
		Detect: func(doc *document.Document) bool {
			return doc.ContainsFold("LIVERPOOL") && doc.ContainsFold("CREDITO")
		},
		Parse: parseLiverpool,
	}
}

func parseLiverpool(doc *document.Document) (*Extraction, error) {
	s, err := readStatement(doc, "liverpool", model.SourceTypeCreditCard)
	if err != nil {
		return nil, err
	}

	if liverpoolPeriod.MatchString(s.text) {
		s.period(liverpoolPeriod)
	} else {
		s.period(liverpoolPeriodAlt)
	}
	s.date(liverpoolCutDate, &s.Statement.StatementDate)
	s.date(liverpoolDueDate, &s.Statement.DueDate)
	s.amount(&s.Statement.MinimumPayment, liverpoolMinimum)
	s.amount(&s.Statement.PaymentNoInterest, liverpoolNoInterest)
	s.accountSuffix(liverpoolCard, liverpoolAccount)

	for _, line := range s.lines {
		if m := liverpoolPlan.FindStringSubmatch(line); m != nil {
			s.liverpoolPlan(line, m)
			continue
		}
		if m := liverpoolRow.FindStringSubmatch(line); m != nil {
			s.liverpoolRow(line, m)
		}
	}

	return s.Extraction, nil
}

func (s *statementText) liverpoolRow(line string, m []string) {
	desc := strings.TrimSpace(m[2])
	if containsAny(desc, "FECHA", "DESCRIPCION", "TOTAL", "SALDO") {
		return
	}

	date, err := ParseDate(m[1])
	if err != nil {
		s.rowIssue("transactions", line, err)
		return
	}
	amount, err := ParseAmount(m[4])
	if err != nil {
		s.rowIssue("transactions", line, err)
		return
	}
	if m[3] == "-" {
		amount = amount.Neg()
	}

	t := s.addTransaction(date, nil, desc, amount)
	if t.Kind == model.KindPayment {
		t.Amount = asPayment(t.Amount)
	}
}

// liverpoolPlan reads a plan row. The statement does not print the pending
// balance, so it is the monthly payment times the installments still due,
// counting the current one.
func (s *statementText) liverpoolPlan(line string, m []string) {
	payment, err := ParseAmount(m[4])
	if err != nil {
		s.rowIssue("installments", line, err)
		return
	}
	current, total := atoi(m[2]), atoi(m[3])
	remaining := total - current + 1
	if remaining < 0 {
		remaining = 0
	}

	s.Plans = append(s.Plans, &model.InstallmentPlan{
		Description:        strings.TrimSpace(m[1]),
		MonthlyPayment:     payment,
		PendingBalance:     payment.Mul(decimal.NewFromInt(int64(remaining))),
		OriginalAmount:     payment.Mul(decimal.NewFromInt(int64(total))),
		CurrentInstallment: current,
		TotalInstallments:  total,
		PlanType:           model.PlanInterestFree,
	})
}
