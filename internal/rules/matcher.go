package rules

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Matcher evaluates descriptions against an ordered rule set.
type Matcher struct {
	rules []Rule
}

// NewMatcher orders rules by descending priority, keeping declaration order
// among equal priorities. Rules without a compiled pattern are compiled
// here and skipped when the pattern is invalid.
func NewMatcher(rules []Rule) *Matcher {
	ordered := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.re == nil {
			re, err := compile(rule.Pattern)
			if err != nil {
				continue
			}
			rule.re = re
		}
		ordered = append(ordered, rule)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	return &Matcher{rules: ordered}
}

// Matcher builds a matcher for the set's rules.
func (s *Set) Matcher() *Matcher {
	return NewMatcher(s.Rules)
}

// Match returns the winning rule for a description, if any.
func (m *Matcher) Match(description string, amount decimal.Decimal) (*Rule, bool) {
	if m == nil || description == "" {
		return nil, false
	}
	for i := range m.rules {
		if m.rules[i].Matches(description, amount) {
			rule := m.rules[i]
			return &rule, true
		}
	}
	return nil, false
}

// Len returns the number of usable rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
