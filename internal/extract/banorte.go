package extract

import (
	"regexp"
	"strings"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	banortePeriod     = regexp.MustCompile(`(?i)Periodo:\s*(` + longDatePat + `)\s+al\s+(` + longDatePat + `)`)
	banorteCutDate    = regexp.MustCompile(`(?i)Fecha\s+de\s+corte:\s*(` + longDatePat + `)`)
	banorteDueDate    = regexp.MustCompile(`(?i)Fecha\s+l[ií]mite\s+de\s+pago:.*?(` + longDatePat + `)`)
	banorteNoInterest = regexp.MustCompile(`(?i)Pago\s+para\s+no\s+generar\s+intereses:\s*\$?\s*([\d,]+\.\d{2})`)
	banorteMinimum    = regexp.MustCompile(`(?i)Pago\s+m[ií]nimo:\s*\d*\s*\$\s*([\d,]+\.\d{2})`)
	banorteMinimumAlt = regexp.MustCompile(`(?i)Pago\s+m[ií]nimo:\s*([\d,]+\.\d{2})`)
	banorteAccount    = regexp.MustCompile(`(?i)N[uú]mero\s+de\s+(?:Cuenta|Tarjeta):\s*([\d\-]+)`)
	banorteLimit      = regexp.MustCompile(`(?i)L[ií]mite\s+de\s+cr[eé]dito:\s*\$?\s*([\d,]+\.\d{2})`)
	banorteAvailable  = regexp.MustCompile(`(?i)Cr[eé]dito\s+disponible:\s*\$?\s*([\d,]+\.\d{2})`)

	// 23-NOV-2025 17-DIC-2025 BALANCE TRANSFER 16/24 +$2,186.99
	banorteRow = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(` + longDatePat + `)\s+(.+?)\s+([+-])\s*\$\s*([\d,]+\.\d{2})`)
	// 29-MAY-2024 BALANCE TRANSFER $34,209.59 $8,235.27 $163.28 $23.13 $1,753.37 19/24 19.99%
	banortePlan = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(BALANCE\s+TRANSFER|CONVENIENCE\s+CHECK)(\s+DEBIT)?\s+` +
		`\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+` +
		`(\d+)/(\d+)\s+([\d.]+)%`)
	spaceRun = regexp.MustCompile(`\s+`)
)

// Banorte extracts Banorte credit card statements.
func Banorte() Extractor {
	return Extractor{
		Name: "banorte",
		Detect: func(doc *document.Document) bool {
			return doc.ContainsFold("BANORTE")
		},
		Parse: parseBanorte,
	}
}

func parseBanorte(doc *document.Document) (*Extraction, error) {
	s, err := readStatement(doc, "banorte", model.SourceTypeCreditCard)
	if err != nil {
		return nil, err
	}

	s.period(banortePeriod)
	s.date(banorteCutDate, &s.Statement.StatementDate)
	s.date(banorteDueDate, &s.Statement.DueDate)
	s.amount(&s.Statement.PaymentNoInterest, banorteNoInterest)
	s.amount(&s.Statement.MinimumPayment, banorteMinimum, banorteMinimumAlt)
	s.amount(&s.Statement.CreditLimit, banorteLimit)
	s.amount(&s.Statement.AvailableCredit, banorteAvailable)
	s.accountSuffix(banorteAccount)

	for _, line := range s.lines {
		if m := banortePlan.FindStringSubmatch(line); m != nil {
			s.banortePlan(line, m)
			continue
		}
		if m := banorteRow.FindStringSubmatch(line); m != nil {
			s.banorteRow(line, m)
		}
	}

	return s.Extraction, nil
}

func (s *statementText) banorteRow(line string, m []string) {
	desc := strings.TrimSpace(m[3])
	if containsAny(desc, "TOTAL", "SALDO") {
		return
	}

	date, err := ParseDate(m[1])
	if err != nil {
		s.rowIssue("transactions", line, err)
		return
	}
	post, err := ParseDate(m[2])
	if err != nil {
		s.rowIssue("transactions", line, err)
		return
	}
	amount, err := ParseAmount(m[5])
	if err != nil {
		s.rowIssue("transactions", line, err)
		return
	}
	if m[4] == "-" {
		amount = amount.Neg()
	}

	t := s.addTransaction(date, &post, desc, amount)
	if containsAny(desc, "BALANCE TRANSFER", "CONVENIENCE CHECK") {
		t.IsInstallmentPayment = true
	}
}

func (s *statementText) banortePlan(line string, m []string) {
	start, err := ParseDate(m[1])
	if err != nil {
		s.rowIssue("installments", line, err)
		return
	}
	rate, err := decimal.NewFromString(m[11])
	if err != nil {
		s.rowIssue("installments", line, err)
		return
	}

	desc := strings.ToUpper(spaceRun.ReplaceAllString(m[2], " "))
	if m[3] != "" {
		desc += " DEBIT"
	}

	s.Plans = append(s.Plans, &model.InstallmentPlan{
		StartDate:          &start,
		Description:        desc,
		OriginalAmount:     mustAmount(m[4]),
		PendingBalance:     mustAmount(m[5]),
		InterestThisPeriod: mustAmount(m[6]),
		TaxThisPeriod:      mustAmount(m[7]),
		MonthlyPayment:     mustAmount(m[8]),
		CurrentInstallment: atoi(m[9]),
		TotalInstallments:  atoi(m[10]),
		InterestRate:       rate,
		HasInterest:        true,
		PlanType:           model.PlanBalanceTransfer,
	})
}
