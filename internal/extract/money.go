package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a money string cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

var amountReplacer = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "", "\t", "")

// ParseAmount parses Mexican formatted money such as "$1,234.56",
// "($100.00)" or "- $45.00". A lone dash or an empty value is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = amountReplacer.Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}

	switch s[0] {
	case '-':
		negative = !negative
		s = s[1:]
	case '+':
		s = s[1:]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func mustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
