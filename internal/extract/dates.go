package extract

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/normalize"
)

// ErrInvalidDate is returned when a statement date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

var months = map[string]time.Month{
	"ENE": time.January, "JAN": time.January,
	"FEB": time.February,
	"MAR": time.March,
	"ABR": time.April, "APR": time.April,
	"MAY": time.May,
	"JUN": time.June,
	"JUL": time.July,
	"AGO": time.August, "AUG": time.August,
	"SEP": time.September, "SET": time.September,
	"OCT": time.October,
	"NOV": time.November,
	"DIC": time.December, "DEC": time.December,
}

var (
	namedDate   = regexp.MustCompile(`^(\d{1,2})[-/ ]([\p{L}]{3})[\p{L}]*\.?[-/ ](\d{4})$`)
	numericDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dayMonth    = regexp.MustCompile(`^(\d{1,2})[-/ ]([\p{L}]{3})[\p{L}]*\.?$`)
)

// ParseDate parses statement dates written as "15-DIC-2025", "1-nov-2025"
// or "15/12/2025" (day first).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if m := namedDate.FindStringSubmatch(s); m != nil {
		month, ok := monthOf(m[2])
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown month in %q", ErrInvalidDate, s)
		}
		return buildDate(s, m[3], int(month), m[1])
	}

	if m := numericDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[2])
		return buildDate(s, m[3], month, m[1])
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseDayMonth parses a "DD-MMM" date. The year comes from ref, the
// statement period end; dates that would land after ref in a later month
// belong to the previous year (a December purchase on a January cut).
func ParseDayMonth(s string, ref time.Time) (time.Time, error) {
	m := dayMonth.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	month, ok := monthOf(m[2])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month in %q", ErrInvalidDate, s)
	}

	t, err := buildDate(s, strconv.Itoa(ref.Year()), int(month), m[1])
	if err != nil {
		return time.Time{}, err
	}
	if t.After(ref) && t.Month() > ref.Month() {
		t = t.AddDate(-1, 0, 0)
	}
	return t, nil
}

func monthOf(name string) (time.Month, bool) {
	m, ok := months[strings.ToUpper(normalize.FoldAccents(name))]
	return m, ok
}

func buildDate(raw, year string, month int, day string) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month out of range in %q", ErrInvalidDate, raw)
	}

	t := time.Date(y, time.Month(month), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("%w: day out of range in %q", ErrInvalidDate, raw)
	}
	return t, nil
}
