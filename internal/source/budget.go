package source

import (
	"sync"
)

// BudgetLedger is the only mutable state shared across concurrent fetch
// tasks: the remaining run budget and per-source daily counts. Updates are
// atomic per task completion.
type BudgetLedger struct {
	mu        sync.Mutex
	remaining float64
	unlimited bool
	counts    map[string]int
}

// NewBudgetLedger creates a ledger with the given ceiling; 0 means
// unlimited.
func NewBudgetLedger(ceiling float64) *BudgetLedger {
	return &BudgetLedger{
		remaining: ceiling,
		unlimited: ceiling <= 0,
		counts:    make(map[string]int),
	}
}

// CanAfford reports whether a source's per-call cost fits the remaining
// budget and its daily limit.
func (b *BudgetLedger) CanAfford(spec Spec) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if spec.DailyLimit > 0 && b.counts[spec.ID] >= spec.DailyLimit {
		return false
	}
	if b.unlimited || spec.Cost == 0 {
		return true
	}
	return spec.Cost <= b.remaining
}

// Charge records one completed call against the ledger. Returns false when
// the call could not be afforded; the caller should treat the source as
// skipped.
func (b *BudgetLedger) Charge(spec Spec) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if spec.DailyLimit > 0 && b.counts[spec.ID] >= spec.DailyLimit {
		return false
	}
	if !b.unlimited && spec.Cost > 0 {
		if spec.Cost > b.remaining {
			return false
		}
		b.remaining -= spec.Cost
	}
	b.counts[spec.ID]++
	return true
}

// Remaining returns the unspent budget; meaningless when unlimited.
func (b *BudgetLedger) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
