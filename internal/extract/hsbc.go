package extract

import (
	"regexp"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
)

var (
	hsbcPeriod     = regexp.MustCompile(`(?i)Periodo:\s*(` + longDatePat + `)\s+al\s+(` + longDatePat + `)`)
	hsbcCutDate    = regexp.MustCompile(`(?i)Fecha\s+de\s+corte:\s*(` + longDatePat + `)`)
	hsbcDueDate    = regexp.MustCompile(`(?i)Fecha\s+l[ií]mite\s+de\s+pago:.*?(` + longDatePat + `)`)
	hsbcNoInterest = regexp.MustCompile(`(?i)PAGO\s+PARA\s+NO\s+GENERAR\s+INTERESES:\s*\$?\s*([\d,]+\.\d{2})`)
	hsbcMinimum    = regexp.MustCompile(`(?i)[a-z]\)\s+Pago\s+m[ií]nimo\s*:\s*\d*\s*\$?\s*([\d,]+\.\d{2})`)
	hsbcMinimumAlt = regexp.MustCompile(`(?i)Pago\s+m[ií]nimo\s*:\s*\d*\s*\$?\s*([\d,]+\.\d{2})`)
	hsbcAccount    = regexp.MustCompile(`(?i)N[UÚ]MERO\s+DE\s+CUENTA:\s*((?:\d+\s+){3}\d{4})`)

	hsbcRegularStart = regexp.MustCompile(`(?i)CARGOS,\s*ABONOS\s*Y\s*COMPRAS\s*REGULARES`)
	hsbcRegularEnd   = regexp.MustCompile(`(?i)ATENCI[OÓ]N\s+DE\s+QU|Informaci[oó]n\s+SPEI`)
	hsbcDeferStart   = regexp.MustCompile(`(?i)COMPRAS\s+Y\s+CARGOS\s+DIFERIDOS\s+A\s+MESES\s+CON\s+INTERESES`)

	// 20-Nov-2025 21-Nov-2025 OXXO ROMA + $ 45.00
	hsbcRow = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(` + longDatePat + `)\s+(.+?)\s+([+-])\s*\$\s*([\d,]+\.\d{2})`)
	// 15-Mar-2025 TRASPASO DE SALDO $ original $ pending $ interest $ iva $ payment 9 de 24 27.50%
	hsbcTransfer = regexp.MustCompile(`(?i)^(` + longDatePat + `)\s+(.+?)\s+` +
		`\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+\$\s*([\d,]+\.\d{2})\s+` +
		`(\d+)\s+de\s+(\d+)\s+([\d.]+)%`)
)

// HSBC extracts HSBC Mexico credit card statements.
func HSBC() Extractor {
	return Extractor{
		Name: "hsbc",
		Detect: func(doc *document.Document) bool {
			return doc.ContainsFold("HSBC AIR") || doc.ContainsFold("HSBC MEXICO")
		},
		Parse: parseHSBC,
	}
}

func parseHSBC(doc *document.Document) (*Extraction, error) {
	s, err := readStatement(doc, "hsbc", model.SourceTypeCreditCard)
	if err != nil {
		return nil, err
	}

	s.period(hsbcPeriod)
	s.date(hsbcCutDate, &s.Statement.StatementDate)
	s.date(hsbcDueDate, &s.Statement.DueDate)
	s.amount(&s.Statement.PaymentNoInterest, hsbcNoInterest)
	s.amount(&s.Statement.MinimumPayment, hsbcMinimum, hsbcMinimumAlt)
	s.accountSuffix(hsbcAccount)

	s.hsbcRegular()
	s.hsbcTransfers()

	return s.Extraction, nil
}

func (s *statementText) hsbcRegular() {
	lines, ok := s.between(hsbcRegularStart, hsbcRegularEnd)
	if !ok {
		s.AddIssue("transactions", ErrSectionNotFound)
		return
	}

	for _, line := range lines {
		m := hsbcRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, err := ParseDate(m[1])
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}
		post, err := ParseDate(m[2])
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}
		amount, err := ParseAmount(m[5])
		if err != nil {
			s.rowIssue("transactions", line, err)
			continue
		}
		if m[4] == "-" {
			amount = amount.Neg()
		}
		s.addTransaction(date, &post, m[3], amount)
	}
}

func (s *statementText) hsbcTransfers() {
	lines, ok := s.between(hsbcDeferStart, hsbcRegularStart)
	if !ok {
		return
	}

	for _, line := range lines {
		m := hsbcTransfer.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := ParseDate(m[1])
		if err != nil {
			s.rowIssue("installments", line, err)
			continue
		}
		rate, err := decimal.NewFromString(m[10])
		if err != nil {
			s.rowIssue("installments", line, err)
			continue
		}
		s.Plans = append(s.Plans, &model.InstallmentPlan{
			StartDate:          &start,
			Description:        m[2],
			OriginalAmount:     mustAmount(m[3]),
			PendingBalance:     mustAmount(m[4]),
			InterestThisPeriod: mustAmount(m[5]),
			TaxThisPeriod:      mustAmount(m[6]),
			MonthlyPayment:     mustAmount(m[7]),
			CurrentInstallment: atoi(m[8]),
			TotalInstallments:  atoi(m[9]),
			InterestRate:       rate,
			HasInterest:        true,
			PlanType:           model.PlanBalanceTransfer,
		})
	}
}
