// Package model defines the canonical records shared by every pipeline stage.
package model

import "time"

// ClassificationStatus is the per-transaction resolution state.
type ClassificationStatus string

// Classification status constants.
const (
	StatusUnclassified ClassificationStatus = "UNCLASSIFIED"
	StatusResolved     ClassificationStatus = "RESOLVED"
)

// ClassificationSource names the tier that resolved a transaction.
type ClassificationSource string

// Classification sources, in tier order, plus manual corrections.
const (
	SourceMerchantHistory ClassificationSource = "merchant_history"
	SourceRules           ClassificationSource = "rules"
	SourceLLM             ClassificationSource = "llm"
	SourceManual          ClassificationSource = "manual"
)

// Valid reports whether s is a known source.
func (s ClassificationSource) Valid() bool {
	switch s {
	case SourceMerchantHistory, SourceRules, SourceLLM, SourceManual:
		return true
	}
	return false
}

// Classification records how and when a transaction was resolved.
type Classification struct {
	ClassifiedAt time.Time
	Source       ClassificationSource
	Confidence   float64
}

// ClassificationCacheEntry remembers the last resolution for a normalized
// description that has no merchant record yet.
type ClassificationCacheEntry struct {
	UpdatedAt             time.Time
	NormalizedDescription string
	Category              string
	Subcategory           string
	Source                ClassificationSource
	Confidence            float64
}
