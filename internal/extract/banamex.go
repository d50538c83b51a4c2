package extract

import (
	"regexp"
	"strings"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
)

var (
	banamexPeriod     = regexp.MustCompile(`(?i)Periodo:\s*(` + longDatePat + `)\s+al\s+(` + longDatePat + `)`)
	banamexCutDate    = regexp.MustCompile(`(?i)Fecha\s+de\s+corte:\s*(` + longDatePat + `)`)
	banamexDueDate    = regexp.MustCompile(`(?i)Fecha\s+l[ií]mite.*?(` + longDatePat + `)`)
	banamexNoInterest = regexp.MustCompile(`(?i)pago\s+para\s+no\s+generar\s+intereses:?\s*\$?\s*([\d,]+\.\d{2})`)
	banamexMinimum    = regexp.MustCompile(`(?i)(?:El\s+)?pago\s+m[ií]nimo:?\s*\d*\s*\$?\s*([\d,]+\.\d{2})`)
	banamexAccount    = regexp.MustCompile(`(?i)N[uú]mero\s+de\s+tarjeta:?\s*([\d *]*\d{4})`)

	// 21-nov-2025 LIVERPOOL POLANCO $12,000.00 $9,000.00 $1,000.00 3 de 12
	banamexMSI = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(.+?)\s+` +
		`\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+(\d+)\s+de\s+(\d+)`)
	// 03-dic-2025 NETFLIX.COM $219.00
	banamexRow = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(.+?)\s+([+-]?)\s*\$\s*([\d,]+\.\d{2})`)
)

// Banamex extracts Citibanamex credit card statements. Some layouts never
// print the bank name, so the card number label and the monthly statement
// title also identify them.
func Banamex() Extractor {
	return Extractor{
		Name: "banamex",
		Detect: func(doc *document.Document) bool {
			if doc.ContainsFold("BANAMEX") {
				return true
			}
			return doc.ContainsFold("Número de tarjeta") && doc.ContainsFold("Estado de Cuenta Mensual")
		},
		Parse: parseBanamex,
	}
}

func parseBanamex(doc *document.Document) (*Extraction, error) {
	s, err := readStatement(doc, "banamex", model.SourceTypeCreditCard)
	if err != nil {
		return nil, err
	}

	s.period(banamexPeriod)
	s.date(banamexCutDate, &s.Statement.StatementDate)
	s.date(banamexDueDate, &s.Statement.DueDate)
	s.amount(&s.Statement.PaymentNoInterest, banamexNoInterest)
	s.amount(&s.Statement.MinimumPayment, banamexMinimum)
	s.accountSuffix(banamexAccount)

	// Installment plans and regular charges share one table; a plan row is
	// recognized by its trailing "X de Y".
	for _, line := range s.lines {
		if m := banamexMSI.FindStringSubmatch(line); m != nil {
			s.banamexPlan(line, m)
			continue
		}
		if m := banamexRow.FindStringSubmatch(line); m != nil {
			s.banamexRow(line, m)
		}
	}

	return s.Extraction, nil
}

func (s *statementText) banamexPlan(line string, m []string) {
	start, err := ParseDate(m[1])
	if err != nil {
		s.rowIssue("installments", line, err)
		return
	}
	s.Plans = append(s.Plans, &model.InstallmentPlan{
		StartDate:          &start,
		Description:        strings.TrimSpace(m[2]),
		OriginalAmount:     mustAmount(m[3]),
		PendingBalance:     mustAmount(m[4]),
		MonthlyPayment:     mustAmount(m[5]),
		CurrentInstallment: atoi(m[6]),
		TotalInstallments:  atoi(m[7]),
		PlanType:           model.PlanInterestFree,
	})
}

func (s *statementText) banamexRow(line string, m []string) {
	desc := strings.TrimSpace(m[2])
	if containsAny(desc, "ORDINARIOS", "MORATORIOS", "SALDO", "TOTAL") {
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
