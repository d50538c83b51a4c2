// Package rules loads the category vocabulary and the ordered pattern rules
// used by the second classification tier.
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/norkodev/finbot/internal/config"
	"github.com/norkodev/finbot/internal/model"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rule")

// Rule maps a description pattern to a category. Among matching rules the
// highest Priority wins and equal priorities keep declaration order.
type Rule struct {
	AmountMin   *decimal.Decimal
	AmountMax   *decimal.Decimal
	re          *regexp.Regexp
	Pattern     string
	Category    string
	Subcategory string
	Priority    int
	// Index is the rule's position in its source file.
	Index int
}

// Set is a vocabulary together with the rules that must respect it.
type Set struct {
	Vocabulary model.Vocabulary
	Rules      []Rule
}

type fileFormat struct {
	Categories map[string][]string `yaml:"categories"`
	Rules      []ruleSpec          `yaml:"rules"`
}

type ruleSpec struct {
	Pattern     string `yaml:"pattern"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
	AmountMin   string `yaml:"amount_min"`
	AmountMax   string `yaml:"amount_max"`
	Priority    int    `yaml:"priority"`
}

// Load reads a rules file. An empty path returns the built-in set.
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates a rules document. When the document declares
// no categories the default vocabulary applies.
func Parse(data []byte) (*Set, error) {
	var file fileFormat
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}

	vocabulary := model.DefaultVocabulary()
	if len(file.Categories) > 0 {
		vocabulary = make(model.Vocabulary, len(file.Categories))
		for category, subs := range file.Categories {
			category = strings.TrimSpace(category)
			if category == "" {
				return nil, fmt.Errorf("%w: empty category name", ErrInvalidRule)
			}
			vocabulary[category] = subs
		}
	}

	set := &Set{Vocabulary: vocabulary}
	for i, spec := range file.Rules {
		rule, err := spec.build(i)
		if err != nil {
			return nil, err
		}
		if err := vocabulary.Validate(rule.Category, rule.Subcategory); err != nil {
			return nil, fmt.Errorf("%w %d: %w", ErrInvalidRule, i, err)
		}
		set.Rules = append(set.Rules, rule)
	}
	return set, nil
}

func (s ruleSpec) build(index int) (Rule, error) {
	rule := Rule{
		Pattern:     strings.TrimSpace(s.Pattern),
		Category:    strings.TrimSpace(s.Category),
		Subcategory: strings.TrimSpace(s.Subcategory),
		Priority:    s.Priority,
		Index:       index,
	}
	if rule.Pattern == "" {
		return Rule{}, fmt.Errorf("%w %d: pattern is required", ErrInvalidRule, index)
	}
	if rule.Category == "" {
		return Rule{}, fmt.Errorf("%w %d: category is required", ErrInvalidRule, index)
	}

	re, err := compile(rule.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("%w %d: %w", ErrInvalidRule, index, err)
	}
	rule.re = re

	if rule.AmountMin, err = parseBound(s.AmountMin); err != nil {
		return Rule{}, fmt.Errorf("%w %d: amount_min: %w", ErrInvalidRule, index, err)
	}
	if rule.AmountMax, err = parseBound(s.AmountMax); err != nil {
		return Rule{}, fmt.Errorf("%w %d: amount_max: %w", ErrInvalidRule, index, err)
	}
	if rule.AmountMin != nil && rule.AmountMax != nil && rule.AmountMin.GreaterThan(*rule.AmountMax) {
		return Rule{}, fmt.Errorf("%w %d: amount_min is greater than amount_max", ErrInvalidRule, index)
	}
	return rule, nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

func parseBound(value string) (*decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Matches reports whether the rule applies to a description and amount.
// Amount bounds compare against the magnitude of the amount.
func (r *Rule) Matches(description string, amount decimal.Decimal) bool {
	if r.re == nil || !r.re.MatchString(description) {
		return false
	}
	magnitude := amount.Abs()
	if r.AmountMin != nil && magnitude.LessThan(*r.AmountMin) {
		return false
	}
	if r.AmountMax != nil && magnitude.GreaterThan(*r.AmountMax) {
		return false
	}
	return true
}
