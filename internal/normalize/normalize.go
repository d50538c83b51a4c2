// Package normalize turns raw statement descriptions into stable keys used
// for matching, deduplication and merchant memory.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/norkodev/finbot/internal/model"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum      = regexp.MustCompile(`[^A-Z0-9\s]`)
	spaces        = regexp.MustCompile(`\s+`)
	digitalCard   = regexp.MustCompile(`(?i)tarjeta\s+digital\s+\*+\d+`)
	maskedCard    = regexp.MustCompile(`\*+\d{4}`)
	installmentRe = regexp.MustCompile(`(?i)(\d+)\s+de\s+(\d+)`)
	separators    = regexp.MustCompile(`\s*[;,]\s*`)
	locationCode  = regexp.MustCompile(`\s+[A-Z]{3,4}$`)
)

// FoldAccents removes diacritics, so "Crédito" becomes "Credito".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Description uppercases s, folds accents, replaces everything that is not
// a letter or digit with a space and collapses whitespace.
func Description(s string) string {
	if s == "" {
		return ""
	}
	s = FoldAccents(strings.ToUpper(s))
	s = nonAlnum.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// MerchantKey reduces a raw description to the canonical merchant name:
// card references, installment markers, separators and a trailing
// location code are removed before normalizing.
func MerchantKey(description string) string {
	if description == "" {
		return ""
	}
	s := digitalCard.ReplaceAllString(description, "")
	s = maskedCard.ReplaceAllString(s, "")
	s = installmentRe.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, " ")
	s = Description(s)

	// Keep the last word when it is all that is left.
	if trimmed := locationCode.ReplaceAllString(s, ""); trimmed != "" {
		s = trimmed
	}
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// InstallmentInfo extracts "N DE M" markers from a description.
func InstallmentInfo(description string) (current, total int, ok bool) {
	m := installmentRe.FindStringSubmatch(description)
	if m == nil {
		return 0, 0, false
	}
	current, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || total == 0 {
		return 0, 0, false
	}
	return current, total, true
}

var (
	paymentWords  = []string{"PAGO", "SPEI", "ABONO", "PAYMENT"}
	interestWords = []string{"INTERES", "INTEREST"}
	feeWords      = []string{"COMISION", "ANUALIDAD", "PENALIZACION", "IVA", "FEE"}
)

// Kind infers the transaction kind from its description.
func Kind(description string) model.TransactionKind {
	d := " " + Description(description) + " "
	switch {
	case containsWord(d, paymentWords, false):
		return model.KindPayment
	case containsWord(d, interestWords, true):
		return model.KindInterest
	case containsWord(d, feeWords, false):
		return model.KindFee
	default:
		return model.KindExpense
	}
}

// IsInterest reports whether the description is an interest charge.
func IsInterest(description string) bool {
	return Kind(description) == model.KindInterest
}

// containsWord matches whole words; prefix also accepts a word that starts
// with one of the keywords (INTERES matches INTERESES).
func containsWord(padded string, words []string, prefix bool) bool {
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
		if prefix && strings.Contains(padded, " "+w) {
			return true
		}
	}
	return false
}
