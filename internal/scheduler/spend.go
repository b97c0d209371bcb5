package scheduler

import "time"

// SpendTracker accumulates ledger transaction fees paid for mint submissions
// over a trailing 24-hour window. Feeds the scheduler's fee budget so minting
// frequency backs off once the daily spend tolerance is reached.
// Not thread-safe — engine-loop owned.
type SpendTracker struct {
	entries []spendEntry
}

type spendEntry struct {
	at     time.Time
	amount int64
}

func NewSpendTracker() *SpendTracker {
	return &SpendTracker{}
}

// Record adds a paid transaction fee (value units).
func (st *SpendTracker) Record(amount int64, now time.Time) {
	if amount <= 0 {
		return
	}
	st.entries = append(st.entries, spendEntry{at: now, amount: amount})
	st.prune(now)
}

// TrailingDay returns total fees paid within the trailing 24 hours.
func (st *SpendTracker) TrailingDay(now time.Time) int64 {
	st.prune(now)
	var total int64
	for _, e := range st.entries {
		total += e.amount
	}
	return total
}

func (st *SpendTracker) prune(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for i < len(st.entries) && st.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.entries = append(st.entries[:0], st.entries[i:]...)
	}
}
