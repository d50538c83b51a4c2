package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
categories:
  alimentacion: [supermercado, delivery]
  transporte: [rideshare]
  otros: []
rules:
  - pattern: "UBER"
    category: transporte
    subcategory: rideshare
    priority: 10
  - pattern: "uber eats"
    category: alimentacion
    subcategory: delivery
    priority: 20
  - pattern: "WALMART|SORIANA"
    category: alimentacion
    subcategory: supermercado
    priority: 10
  - pattern: "SORIANA"
    category: otros
    priority: 10
  - pattern: "TIENDA"
    category: otros
    amount_min: 1000
    amount_max: "5000.50"
`

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	assert.Len(t, set.Rules, 5)
	assert.Equal(t, []string{"alimentacion", "otros", "transporte"}, set.Vocabulary.Categories())
	require.NotNil(t, set.Rules[4].AmountMin)
	assert.Equal(t, "1000", set.Rules[4].AmountMin.String())
	assert.Equal(t, "5000.5", set.Rules[4].AmountMax.String())
	assert.Equal(t, 3, set.Rules[3].Index)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "bad regex",
			yaml:    "rules:\n  - pattern: \"OXXO(\"\n    category: gastos_hormiga\n",
			wantMsg: "invalid rule 0",
		},
		{
			name:    "unknown category",
			yaml:    "rules:\n  - pattern: OXXO\n    category: gastos_hormiga\n  - pattern: X\n    category: vacaciones\n",
			wantMsg: "invalid rule 1",
		},
		{
			name:    "unknown subcategory",
			yaml:    "rules:\n  - pattern: OXXO\n    category: gastos_hormiga\n    subcategory: tacos\n",
			wantMsg: "unknown subcategory",
		},
		{
			name:    "missing pattern",
			yaml:    "rules:\n  - category: otros\n",
			wantMsg: "pattern is required",
		},
		{
			name:    "inverted bounds",
			yaml:    "rules:\n  - pattern: X\n    category: otros\n    amount_min: 10\n    amount_max: 5\n",
			wantMsg: "amount_min is greater",
		},
		{
			name:    "bad bound",
			yaml:    "rules:\n  - pattern: X\n    category: otros\n    amount_min: mucho\n",
			wantMsg: "amount_min",
		},
		{
			name:    "not yaml",
			yaml:    "rules: [",
			wantMsg: "failed to parse rules yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, set.Rules)
	assert.Equal(t, model.DefaultVocabulary().Categories(), set.Vocabulary.Categories())

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0600))

	set, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMatcher_Match(t *testing.T) {
	set, err := Parse([]byte(sampleRules))
	require.NoError(t, err)
	matcher := set.Matcher()

	tests := []struct {
		name        string
		description string
		amount      string
		wantCat     string
		wantSub     string
		wantOK      bool
	}{
		{name: "simple", description: "UBER TRIP", amount: "89", wantCat: "transporte", wantSub: "rideshare", wantOK: true},
		{name: "higher priority wins", description: "UBER EATS PENDING", amount: "250", wantCat: "alimentacion", wantSub: "delivery", wantOK: true},
		{name: "case insensitive", description: "walmart express", amount: "500", wantCat: "alimentacion", wantSub: "supermercado", wantOK: true},
		{name: "tie keeps declaration order", description: "SORIANA HIPER", amount: "700", wantCat: "alimentacion", wantSub: "supermercado", wantOK: true},
		{name: "inside amount bounds", description: "TIENDA DEPORTES", amount: "1200", wantCat: "otros", wantOK: true},
		{name: "bounds use magnitude", description: "TIENDA DEPORTES", amount: "-1200", wantCat: "otros", wantOK: true},
		{name: "below amount bounds", description: "TIENDA DEPORTES", amount: "999.99", wantOK: false},
		{name: "above amount bounds", description: "TIENDA DEPORTES", amount: "5000.51", wantOK: false},
		{name: "no match", description: "CINEPOLIS", amount: "150", wantOK: false},
		{name: "empty", description: "", amount: "1", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := matcher.Match(tt.description, decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, rule)
				return
			}
			assert.Equal(t, tt.wantCat, rule.Category)
			assert.Equal(t, tt.wantSub, rule.Subcategory)
		})
	}
}

func TestNewMatcher_SkipsBrokenPatterns(t *testing.T) {
	matcher := NewMatcher([]Rule{
		{Pattern: "(", Category: "otros"},
		{Pattern: "oxxo", Category: "gastos_hormiga", Priority: 1},
	})
	assert.Equal(t, 1, matcher.Len())

	rule, ok := matcher.Match("OXXO CENTRO", decimal.NewFromInt(45))
	require.True(t, ok)
	assert.Equal(t, "gastos_hormiga", rule.Category)

	var nilMatcher *Matcher
	_, ok = nilMatcher.Match("OXXO", decimal.Zero)
	assert.False(t, ok)
}

func TestDefault(t *testing.T) {
	matcher := Default().Matcher()

	tests := []struct {
		description string
		wantSub     string
	}{
		{description: "OXXO GAS INSURGENTES", wantSub: "gasolina"},
		{description: "OXXO CENTRO", wantSub: "conveniencia"},
		{description: "Uber Eats", wantSub: "delivery"},
		{description: "UBER *TRIP HELP.UBER.COM", wantSub: "rideshare"},
		{description: "NETFLIX.COM", wantSub: "streaming"},
		{description: "AT&T MEXICO", wantSub: "telefonia"},
		{description: "Farmacias Guadalajara", wantSub: "farmacia"},
		{description: "INTERESES ORDINARIOS", wantSub: "intereses"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			rule, ok := matcher.Match(normalize.Description(tt.description), decimal.NewFromInt(100))
			require.True(t, ok)
			assert.Equal(t, tt.wantSub, rule.Subcategory)
		})
	}
}
