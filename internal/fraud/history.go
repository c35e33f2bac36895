// Package fraud screens recent transactions for anomalous activity using a
// learned anomaly scorer with a rule-based fallback, fed by a rolling
// window of account history.
package fraud

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sriscode/MobileArc/internal/banking"
)

// MaxHistoryEntries bounds the rolling window.
const MaxHistoryEntries = 100

// Snapshot is an immutable view of the rolling history. Readers score
// against a snapshot; the sync writer replaces the whole snapshot at once,
// so no locking is needed beyond the atomic pointer swap.
type Snapshot struct {
	Transactions []banking.Transaction
	LastLocation *banking.Location
}

// History holds the rolling transaction window with single-writer updates
// and lock-free snapshot reads.
type History struct {
	current atomic.Pointer[Snapshot]
}

// NewHistory creates an empty history.
func NewHistory() *History {
	h := &History{}
	h.current.Store(&Snapshot{})
	return h
}

// Update replaces the history wholesale with the latest transactions
// (capped at MaxHistoryEntries, newest first) and last known location.
func (h *History) Update(txns []banking.Transaction, loc *banking.Location) {
	if len(txns) > MaxHistoryEntries {
		txns = txns[:MaxHistoryEntries]
	}
	copied := make([]banking.Transaction, len(txns))
	copy(copied, txns)
	h.current.Store(&Snapshot{Transactions: copied, LastLocation: loc})
}

// Snapshot returns the current view. The returned value must not be mutated.
func (h *History) Snapshot() *Snapshot {
	return h.current.Load()
}

// AmountStats returns the mean and population standard deviation of the
// window's amounts. Both are zero for an empty window.
func (s *Snapshot) AmountStats() (mean, stddev float64) {
	n := len(s.Transactions)
	if n == 0 {
		return 0, 0
	}
	for _, t := range s.Transactions {
		mean += t.Amount
	}
	mean /= float64(n)
	var variance float64
	for _, t := range s.Transactions {
		d := t.Amount - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / float64(n))
}

// VelocityCount returns how many window transactions fall within the given
// duration before ref.
func (s *Snapshot) VelocityCount(ref time.Time, within time.Duration) int {
	cutoff := ref.Add(-within)
	count := 0
	for _, t := range s.Transactions {
		if t.Timestamp.After(cutoff) && !t.Timestamp.After(ref) {
			count++
		}
	}
	return count
}
