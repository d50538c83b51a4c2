package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// MerchantSource indicates how a merchant's category was assigned.
type MerchantSource string

const (
	// MerchantSourceAuto is a merchant learned from rule or AI classification.
	MerchantSourceAuto MerchantSource = "auto"
	// MerchantSourceManual is a merchant whose category a human set. It is
	// never overwritten by automatic learning.
	MerchantSourceManual MerchantSource = "manual"
)

// Merchant is the learned mapping from a normalized name to a category.
type Merchant struct {
	LastSeen            *time.Time
	UpdatedAt           time.Time
	TotalAmount         decimal.Decimal
	AverageAmount       decimal.Decimal
	ID                  string
	Name                string
	NormalizedName      string
	Category            string
	Subcategory         string
	Source              MerchantSource
	SubscriptionCadence string
	Aliases             []string
	TransactionCount    int
	IsSubscription      bool
}

// HasAlias reports whether alias is already recorded for the merchant.
func (m *Merchant) HasAlias(alias string) bool {
	return alias == m.NormalizedName || slices.Contains(m.Aliases, alias)
}

// AddAlias records a new normalized description variant. It returns false
// when the alias was already known.
func (m *Merchant) AddAlias(alias string) bool {
	if alias == "" || m.HasAlias(alias) {
		return false
	}
	m.Aliases = append(m.Aliases, alias)
	return true
}

// Observe folds a transaction into the merchant's running statistics.
func (m *Merchant) Observe(t *Transaction) {
	m.TransactionCount++
	m.TotalAmount = m.TotalAmount.Add(t.Amount)
	m.AverageAmount = m.TotalAmount.Div(decimal.NewFromInt(int64(m.TransactionCount))).Round(2)
	if m.LastSeen == nil || t.Date.After(*m.LastSeen) {
		seen := t.Date
		m.LastSeen = &seen
	}
}
