package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	// ErrUnknownCategory is returned for a category outside the vocabulary.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownSubcategory is returned for a subcategory the category does not allow.
	ErrUnknownSubcategory = errors.New("unknown subcategory")
)

// Vocabulary is the closed set of categories and their subcategories shared
// by the rule and AI tiers.
type Vocabulary map[string][]string

// Contains reports whether category exists in the vocabulary.
func (v Vocabulary) Contains(category string) bool {
	_, ok := v[category]
	return ok
}

// Allows reports whether subcategory is valid for category. An empty
// subcategory is always allowed.
func (v Vocabulary) Allows(category, subcategory string) bool {
	subs, ok := v[category]
	if !ok {
		return false
	}
	return subcategory == "" || slices.Contains(subs, subcategory)
}

// Validate checks a category/subcategory pair.
func (v Vocabulary) Validate(category, subcategory string) error {
	if !v.Contains(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if !v.Allows(category, subcategory) {
		return fmt.Errorf("%w: %q for category %q", ErrUnknownSubcategory, subcategory, category)
	}
	return nil
}

// Categories returns the category names in sorted order.
func (v Vocabulary) Categories() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultVocabulary is used when no classification file configures one.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"alimentacion":    {"supermercado", "restaurantes", "delivery", "cafe"},
		"transporte":      {"rideshare", "gasolina", "peaje", "estacionamiento"},
		"entretenimiento": {"streaming", "cine", "eventos"},
		"salud":           {"farmacia", "medico", "gym"},
		"servicios":       {"telefonia", "internet", "agua", "luz", "gas"},
		"compras":         {"ropa", "tiendas", "online", "departamental"},
		"gastos_hormiga":  {"conveniencia"},
		"financiero":      {"intereses", "comisiones", "retiro_efectivo"},
		"pagos":           {"transferencia"},
		"otros":           {},
	}
}
