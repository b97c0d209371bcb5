package engine

import (
	"FeeMint/internal/scheduler"
	"FeeMint/internal/throttle"
	"time"
)

// FeeState is the single mutable record owned exclusively by one Engine.
// Created once at initialization (from persisted state or defaults), mutated
// exactly once per accepted ledger-close event, and checkpointed after each
// mutation. Never deleted while the fund is active.
type FeeState struct {
	FundID string

	// LastMintTime is the close time of the last successful mint, or the
	// fund creation time if none. Feeds the max-interval staleness trigger.
	LastMintTime time.Time

	// LastAccrualTime is the close time up to which fee has been accrued.
	// Accrual per event covers [LastAccrualTime, closeTime]; a deferred event
	// leaves it untouched, so the elapsed time is never lost.
	LastAccrualTime time.Time

	// AccruedUnminted is fee owed but not yet minted, value units.
	// Invariant: >= 0, non-decreasing between mints.
	AccruedUnminted int64

	// AccrualRemainder is the exact sub-unit division remainder carried
	// between accrual computations (see accrual.ComputeOwedWithRemainder).
	AccrualRemainder int64

	// LastLedgerSequence is the highest ledger sequence processed. Events at
	// or below it are rejected as duplicates, never reprocessed.
	LastLedgerSequence uint64

	// CarryForwardDeficit is fee that exceeded the daily cap when computed,
	// to be minted as future cap headroom permits. Invariant: >= 0.
	CarryForwardDeficit int64

	// DailyWindow holds the trailing-24h minted entries.
	// Invariant: sum of amounts <= dailyCap (when the cap is enabled).
	DailyWindow []throttle.Entry

	// SchedulerState is the scheduler position, persisted so a failed mint
	// stays armed across a restart.
	SchedulerState scheduler.State
}

// Clone returns a deep copy safe to hand to the checkpoint worker.
func (s *FeeState) Clone() FeeState {
	out := *s
	out.DailyWindow = make([]throttle.Entry, len(s.DailyWindow))
	copy(out.DailyWindow, s.DailyWindow)
	return out
}
