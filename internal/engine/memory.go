package engine

import (
	"github.com/norkodev/finbot/internal/model"
	"github.com/norkodev/finbot/internal/service"
)

// pendingMemory holds merchants learned during one call that have not been
// stored yet. A nil *pendingMemory recalls nothing.
type pendingMemory struct {
	byKey   map[string]*service.Learning
	byDesc  map[string]*service.Learning
	learned []*service.Learning
}

func newPendingMemory() *pendingMemory {
	return &pendingMemory{
		byKey:  make(map[string]*service.Learning),
		byDesc: make(map[string]*service.Learning),
	}
}

// recall finds a pending merchant by key, then by normalized description.
func (m *pendingMemory) recall(key, desc string) (*service.Learning, bool) {
	if m == nil {
		return nil, false
	}
	if learning, ok := m.byKey[key]; ok && key != "" {
		return learning, true
	}
	if learning, ok := m.byDesc[desc]; ok && desc != "" {
		return learning, true
	}
	return nil, false
}

// remember attaches txn to the pending merchant for merchant.NormalizedName,
// creating it on first sight. It reports whether the merchant is new.
func (m *pendingMemory) remember(txn *model.Transaction, merchant *model.Merchant, entry *model.ClassificationCacheEntry) bool {
	learning, ok := m.byKey[merchant.NormalizedName]
	if ok {
		learning.Merchant.AddAlias(txn.NormalizedDescription)
	} else {
		learning = &service.Learning{Merchant: merchant}
		m.byKey[merchant.NormalizedName] = learning
		m.learned = append(m.learned, learning)
	}

	learning.Transactions = append(learning.Transactions, txn)
	if txn.NormalizedDescription != "" {
		m.byDesc[txn.NormalizedDescription] = learning
	}
	if entry != nil {
		learning.Cache = append(learning.Cache, entry)
	}
	return !ok
}
