// Package subscription finds merchants that charge on a recurring schedule
// and flags their transactions.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
	"github.com/shopspring/decimal"
)

// Cadences.
const (
	CadenceMonthly   = "monthly"
	CadenceFrequent  = "frequent"
	CadenceIrregular = "irregular"
)

const (
	monthlyMinDays = 20
	monthlyMaxDays = 40
)

// KnownServices are merchants treated as subscriptions even when their
// amount varies.
var KnownServices = []string{
	"netflix", "spotify", "amazon prime", "disney", "hbo", "apple music",
	"youtube premium", "google one", "icloud", "dropbox", "office 365",
	"microsoft 365", "github", "linkedin premium", "zoom", "adobe",
	"smartfit", "smart fit", "sportcity", "gold gym", "anytime fitness",
}

// Store is the part of the persistence layer the detector uses.
type Store interface {
	GetAllMerchants(ctx context.Context) ([]model.Merchant, error)
	GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error)
	MarkSubscriptions(ctx context.Context, merchantID, cadence string, transactionIDs []string) error
}

// Subscription describes a detected recurring charge.
type Subscription struct {
	FirstPayment    time.Time
	LastPayment     time.Time
	AverageAmount   decimal.Decimal
	MerchantID      string
	MerchantName    string
	Category        string
	Subcategory     string
	Cadence         string
	TransactionIDs  []string
	Count           int
	AmountVariation float64
	Known           bool
}

// Detector analyzes per-merchant expense history.
type Detector struct {
	store  Store
	logger *slog.Logger
	// Known lists lowercase fragments of merchant names that are always
	// subscriptions.
	Known           []string
	MinOccurrences  int
	AmountTolerance float64
}

// NewDetector creates a detector with the default thresholds.
func NewDetector(store Store, logger *slog.Logger) *Detector {
	return &Detector{
		store:           store,
		logger:          common.LoggerOrDefault(logger),
		Known:           KnownServices,
		MinOccurrences:  2,
		AmountTolerance: 0.10,
	}
}

// Detect returns the subscriptions found in storage, largest average amount
// first.
func (d *Detector) Detect(ctx context.Context) ([]Subscription, error) {
	merchants, err := d.store.GetAllMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchants: %w", err)
	}

	var subs []Subscription
	for i := range merchants {
		merchant := &merchants[i]
		txns, err := d.store.GetTransactions(ctx, service.TransactionFilter{MerchantID: merchant.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to load transactions for %s: %w", merchant.NormalizedName, err)
		}
		if sub, ok := d.Analyze(merchant, txns); ok {
			subs = append(subs, sub)
		}
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].AverageAmount.GreaterThan(subs[j].AverageAmount)
	})
	return subs, nil
}

// Analyze decides whether a merchant's transactions form a subscription.
// Only expense charges count; reversals and duplicates are ignored.
func (d *Detector) Analyze(merchant *model.Merchant, txns []*model.Transaction) (Subscription, bool) {
	charges := make([]*model.Transaction, 0, len(txns))
	for _, t := range txns {
		if t.Kind == model.KindExpense && t.CountsTowardSpend() {
			charges = append(charges, t)
		}
	}
	minOccurrences := max(d.MinOccurrences, 2)
	if len(charges) < minOccurrences {
		return Subscription{}, false
	}
	sort.SliceStable(charges, func(i, j int) bool { return charges[i].Date.Before(charges[j].Date) })

	known := d.isKnown(merchant.NormalizedName)

	amounts := make([]float64, len(charges))
	total := decimal.Zero
	for i, t := range charges {
		amounts[i] = t.Amount.Abs().InexactFloat64()
		total = total.Add(t.Amount.Abs())
	}
	variation := coefficientOfVariation(amounts)
	if variation > d.AmountTolerance && !known {
		return Subscription{}, false
	}

	var days float64
	for i := 1; i < len(charges); i++ {
		days += charges[i].Date.Sub(charges[i-1].Date).Hours() / 24
	}
	meanInterval := days / float64(len(charges)-1)

	cadence := CadenceIrregular
	switch {
	case meanInterval >= monthlyMinDays && meanInterval <= monthlyMaxDays:
		cadence = CadenceMonthly
	case meanInterval < monthlyMinDays:
		cadence = CadenceFrequent
	}
	if cadence != CadenceMonthly && !known {
		return Subscription{}, false
	}

	ids := make([]string, len(charges))
	for i, t := range charges {
		ids[i] = t.ID
	}

	return Subscription{
		MerchantID:      merchant.ID,
		MerchantName:    merchant.Name,
		Category:        merchant.Category,
		Subcategory:     merchant.Subcategory,
		Cadence:         cadence,
		AverageAmount:   total.Div(decimal.NewFromInt(int64(len(charges)))).Round(2),
		Count:           len(charges),
		FirstPayment:    charges[0].Date,
		LastPayment:     charges[len(charges)-1].Date,
		AmountVariation: variation,
		Known:           known,
		TransactionIDs:  ids,
	}, true
}

// Mark flags every detected subscription in storage and returns what was
// marked.
func (d *Detector) Mark(ctx context.Context) ([]Subscription, error) {
	subs, err := d.Detect(ctx)
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if err := d.store.MarkSubscriptions(ctx, sub.MerchantID, sub.Cadence, sub.TransactionIDs); err != nil {
			return nil, fmt.Errorf("failed to mark subscription %s: %w", sub.MerchantName, err)
		}
		d.logger.Debug("Marked subscription",
			"merchant", sub.MerchantName,
			"cadence", sub.Cadence,
			"transactions", sub.Count)
	}

	d.logger.Info("Subscription detection finished", "subscriptions", len(subs))
	return subs, nil
}

// Active filters subscriptions charged within the last monthsBack months
// of now.
func Active(subs []Subscription, now time.Time, monthsBack int) []Subscription {
	cutoff := now.AddDate(0, -monthsBack, 0)
	var active []Subscription
	for _, sub := range subs {
		if !sub.LastPayment.Before(cutoff) {
			active = append(active, sub)
		}
	}
	return active
}

func (d *Detector) isKnown(normalizedName string) bool {
	name := strings.ToLower(normalizedName)
	for _, known := range d.Known {
		if strings.Contains(name, known) {
			return true
		}
	}
	return false
}

// coefficientOfVariation is the population standard deviation over the
// mean. A zero mean counts as maximal variation.
func coefficientOfVariation(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean <= 0 {
		return 1
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}
