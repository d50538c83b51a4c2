package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/document"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/shopspring/decimal"
)

// Shared fragments for statement row patterns.
const (
	longDatePat  = `\d{1,2}-\p{L}{3}-\d{4}`
	shortDatePat = `\d{2}-\p{L}{3}`
	moneyPat     = `\$\s*[\d,]+\.\d{2}`
)

var digitsOnly = regexp.MustCompile(`\D`)

// statementText is the working state of a text-based extractor.
type statementText struct {
	*Extraction
	text  string
	lines []string
}

func readStatement(doc *document.Document, bank, sourceType string) (*statementText, error) {
	text, err := doc.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to read text layer: %w", err)
	}
	return &statementText{
		Extraction: newExtraction(bank, sourceType),
		text:       text,
		lines:      doc.Lines(),
	}, nil
}

// date stores the first submatch of re, parsed as a date, into dst.
func (s *statementText) date(re *regexp.Regexp, dst **time.Time) {
	m := re.FindStringSubmatch(s.text)
	if m == nil {
		return
	}
	t, err := ParseDate(m[1])
	if err != nil {
		s.AddIssue("summary", err)
		return
	}
	*dst = &t
}

// period stores the two submatches of re as the billing period.
func (s *statementText) period(re *regexp.Regexp) {
	m := re.FindStringSubmatch(s.text)
	if m == nil {
		s.AddIssue("summary", fmt.Errorf("%w: billing period", ErrSectionNotFound))
		return
	}
	start, err := ParseDate(m[1])
	if err != nil {
		s.AddIssue("summary", err)
		return
	}
	end, err := ParseDate(m[2])
	if err != nil {
		s.AddIssue("summary", err)
		return
	}
	s.Statement.PeriodStart = &start
	s.Statement.PeriodEnd = &end
}

// amount stores the first submatch of the first matching pattern into dst.
func (s *statementText) amount(dst *decimal.NullDecimal, patterns ...*regexp.Regexp) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(s.text)
		if m == nil {
			continue
		}
		d, err := ParseAmount(m[1])
		if err != nil {
			s.AddIssue("summary", err)
			return
		}
		*dst = decimal.NewNullDecimal(d)
		return
	}
}

// accountSuffix keeps the last four digits of the first matching pattern.
func (s *statementText) accountSuffix(patterns ...*regexp.Regexp) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(s.text)
		if m == nil {
			continue
		}
		digits := digitsOnly.ReplaceAllString(m[1], "")
		if len(digits) > 4 {
			digits = digits[len(digits)-4:]
		}
		s.Statement.AccountSuffix = digits
		return
	}
}

// between returns the lines after the first line matching start, up to but
// excluding the next line matching end. A nil end runs to the last line.
func (s *statementText) between(start, end *regexp.Regexp) ([]string, bool) {
	for i, line := range s.lines {
		if !start.MatchString(line) {
			continue
		}
		rest := s.lines[i+1:]
		if end == nil {
			return rest, true
		}
		for j, l := range rest {
			if end.MatchString(l) {
				return rest[:j], true
			}
		}
		return rest, true
	}
	return nil, false
}

// addTransaction appends a statement line with kind and flags derived from
// its description.
func (s *statementText) addTransaction(date time.Time, post *time.Time, desc string, amount decimal.Decimal) *model.Transaction {
	desc = strings.TrimSpace(desc)
	t := &model.Transaction{
		Date:                  date,
		PostDate:              post,
		Description:           desc,
		NormalizedDescription: normalize.Description(desc),
		Amount:                amount,
		Currency:              model.DefaultCurrency,
		Kind:                  normalize.Kind(desc),
	}

	switch t.Kind {
	case model.KindInterest:
		t.HasInterest = true
	case model.KindExpense:
		if amount.IsNegative() {
			t.Kind = model.KindIncome
		}
	}
	if _, _, ok := normalize.InstallmentInfo(desc); ok {
		t.IsInstallmentPayment = true
	}

	s.Transactions = append(s.Transactions, t)
	return t
}

// rowIssue records a statement row that matched a pattern but could not be
// converted.
func (s *statementText) rowIssue(section, line string, err error) {
	s.AddIssue(section, fmt.Errorf("row %q: %w", line, err))
}

func containsAny(s string, words ...string) bool {
	upper := strings.ToUpper(s)
	for _, w := range words {
		if strings.Contains(upper, w) {
			return true
		}
	}
	return false
}

func asPayment(amount decimal.Decimal) decimal.Decimal {
	return amount.Abs().Neg()
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
