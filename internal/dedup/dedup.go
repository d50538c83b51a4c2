// Package dedup flags duplicate charges and reversal pairs inside one
// statement batch before any classification work is spent on them.
package dedup

import (
	"sort"
	"time"

	"github.com/norkodev/finbot/internal/model"
)

// Default windows.
const (
	DefaultDuplicateWindow = 72 * time.Hour
	DefaultReversalWindow  = 30 * 24 * time.Hour
)

// Detector holds the matching windows. The zero value uses the defaults.
type Detector struct {
	DuplicateWindow time.Duration
	ReversalWindow  time.Duration
}

// Result counts what a Detect call flagged. Reversals counts pairs.
type Result struct {
	Duplicates int
	Reversals  int
	Ambiguous  int
}

// NewDetector returns a detector with the default windows.
func NewDetector() *Detector {
	return &Detector{
		DuplicateWindow: DefaultDuplicateWindow,
		ReversalWindow:  DefaultReversalWindow,
	}
}

// Detect flags duplicates first and then reversal pairs among the rows that
// survived. It must be given the transactions of a single statement.
func (d *Detector) Detect(txns []*model.Transaction) Result {
	var result Result
	result.Duplicates = d.markDuplicates(txns)
	result.Reversals, result.Ambiguous = d.markReversals(txns)
	return result
}

func (d *Detector) duplicateWindow() time.Duration {
	if d == nil || d.DuplicateWindow <= 0 {
		return DefaultDuplicateWindow
	}
	return d.DuplicateWindow
}

func (d *Detector) reversalWindow() time.Duration {
	if d == nil || d.ReversalWindow <= 0 {
		return DefaultReversalWindow
	}
	return d.ReversalWindow
}

type groupKey struct {
	description string
	amount      string
}

func (d *Detector) markDuplicates(txns []*model.Transaction) int {
	groups := make(map[groupKey][]*model.Transaction)
	var order []groupKey
	for _, txn := range txns {
		if txn.IsDuplicate || txn.IsReversal {
			continue
		}
		key := groupKey{description: descriptionKey(txn), amount: txn.Amount.String()}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], txn)
	}

	window := d.duplicateWindow()
	flagged := 0
	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Date.Before(group[j].Date)
		})

		original := group[0]
		for _, txn := range group[1:] {
			if txn.Date.Sub(original.Date) <= window {
				txn.IsDuplicate = true
				txn.RelatedTransactionID = original.ID
				flagged++
				continue
			}
			original = txn
		}
	}
	return flagged
}

type candidate struct {
	charge   int
	credit   int
	distance time.Duration
}

// markReversals pairs charges with credits of the same magnitude. A row whose
// closest candidates tie is left alone together with those candidates, so
// ties never suppress spend.
func (d *Detector) markReversals(txns []*model.Transaction) (pairs, ambiguous int) {
	window := d.reversalWindow()

	var candidates []candidate
	for i, charge := range txns {
		if !eligible(charge) || !charge.Amount.IsPositive() {
			continue
		}
		for j, credit := range txns {
			if i == j || !eligible(credit) || !credit.Amount.IsNegative() {
				continue
			}
			if descriptionKey(charge) != descriptionKey(credit) || !charge.Amount.Equal(credit.Amount.Neg()) {
				continue
			}
			distance := absDuration(charge.Date.Sub(credit.Date))
			if distance > window {
				continue
			}
			candidates = append(candidates, candidate{charge: i, credit: j, distance: distance})
		}
	}
	if len(candidates) == 0 {
		return 0, 0
	}

	closest := make(map[int]time.Duration)
	for _, c := range candidates {
		for _, idx := range []int{c.charge, c.credit} {
			if best, ok := closest[idx]; !ok || c.distance < best {
				closest[idx] = c.distance
			}
		}
	}

	blocked := make(map[int]bool)
	for idx, best := range closest {
		var tied []int
		for _, c := range candidates {
			if c.distance != best {
				continue
			}
			switch idx {
			case c.charge:
				tied = append(tied, c.credit)
			case c.credit:
				tied = append(tied, c.charge)
			}
		}
		if len(tied) < 2 {
			continue
		}
		blocked[idx] = true
		for _, other := range tied {
			blocked[other] = true
		}
	}
	ambiguous = len(blocked)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		if candidates[i].charge != candidates[j].charge {
			return candidates[i].charge < candidates[j].charge
		}
		return candidates[i].credit < candidates[j].credit
	})

	matched := make(map[int]bool)
	for _, c := range candidates {
		if blocked[c.charge] || blocked[c.credit] || matched[c.charge] || matched[c.credit] {
			continue
		}
		matched[c.charge] = true
		matched[c.credit] = true
		charge, credit := txns[c.charge], txns[c.credit]
		charge.RelatedTransactionID = credit.ID
		credit.RelatedTransactionID = charge.ID
		for _, txn := range []*model.Transaction{charge, credit} {
			txn.IsReversal = true
			txn.Kind = model.KindReversal
		}
		pairs++
	}
	return pairs, ambiguous
}

func eligible(txn *model.Transaction) bool {
	return !txn.IsDuplicate && !txn.IsReversal
}

func descriptionKey(txn *model.Transaction) string {
	if txn.NormalizedDescription != "" {
		return txn.NormalizedDescription
	}
	return txn.Description
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
