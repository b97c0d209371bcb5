package throttle

import (
	"FeeMint/internal/event"
	"fmt"
	"time"
)

// Window is the trailing interval over which minted amounts are capped.
const Window = 24 * time.Hour

// Entry is one minted amount inside the trailing window.
type Entry struct {
	Timestamp time.Time
	Amount    int64
}

// Decision is the result of Admit: mint AmountToMintNow now, carry NewDeficit
// forward. Apply it with Commit only after the mint actually succeeded.
type Decision struct {
	AmountToMintNow int64
	NewDeficit      int64
	at              time.Time
}

// Throttle bounds total minted fee in any trailing 24-hour window to dailyCap
// while tracking amounts blocked by the cap as a carry-forward deficit.
// Not thread-safe — only accessed from the single-owner engine loop.
//
// dailyCap = 0 disables the throttle entirely: every candidate is admitted in
// full, along with any deficit carried over from a previously capped run.
type Throttle struct {
	dailyCap int64
	deficit  int64
	window   []Entry
}

func New(dailyCap int64) (*Throttle, error) {
	if dailyCap < 0 {
		return nil, fmt.Errorf("%w: negative daily cap %d", event.ErrInvalidInput, dailyCap)
	}
	return &Throttle{dailyCap: dailyCap}, nil
}

// Admit computes how much of candidateAmount (plus the existing deficit) fits
// under the cap headroom at time now. Pure with respect to window and deficit:
// a failed submission simply never commits the decision, so the invariant
// windowSum + committed ≤ dailyCap survives every failure path.
func (t *Throttle) Admit(candidateAmount int64, now time.Time) (Decision, error) {
	if candidateAmount < 0 {
		return Decision{}, fmt.Errorf("%w: negative candidate amount %d", event.ErrInvalidInput, candidateAmount)
	}

	t.evict(now)

	if t.dailyCap == 0 {
		// A deficit restored from a capped run still has to be paid out.
		return Decision{AmountToMintNow: candidateAmount + t.deficit, NewDeficit: 0, at: now}, nil
	}

	headroom := t.dailyCap - t.sum()
	if headroom < 0 {
		headroom = 0
	}

	totalDesired := candidateAmount + t.deficit
	amountNow := totalDesired
	if amountNow > headroom {
		amountNow = headroom
	}

	return Decision{
		AmountToMintNow: amountNow,
		NewDeficit:      totalDesired - amountNow,
		at:              now,
	}, nil
}

// Commit applies a decision after a successful mint: records the minted
// amount in the window and adopts the new deficit.
func (t *Throttle) Commit(d Decision) {
	if d.AmountToMintNow > 0 {
		t.window = append(t.window, Entry{Timestamp: d.at, Amount: d.AmountToMintNow})
	}
	t.deficit = d.NewDeficit
}

// WindowSum returns the total minted within the trailing window as of now.
func (t *Throttle) WindowSum(now time.Time) int64 {
	t.evict(now)
	return t.sum()
}

// Deficit returns the current carry-forward deficit.
func (t *Throttle) Deficit() int64 {
	return t.deficit
}

// DailyCap returns the configured cap (0 = disabled).
func (t *Throttle) DailyCap() int64 {
	return t.dailyCap
}

// Snapshot returns the window entries and deficit for checkpointing.
func (t *Throttle) Snapshot() ([]Entry, int64) {
	entries := make([]Entry, len(t.window))
	copy(entries, t.window)
	return entries, t.deficit
}

// Restore replaces window and deficit from a checkpoint.
func (t *Throttle) Restore(entries []Entry, deficit int64) {
	t.window = append(t.window[:0], entries...)
	if deficit < 0 {
		deficit = 0
	}
	t.deficit = deficit
}

// evict drops entries older than now - Window. Entries arrive in close-time
// order, so the window stays sorted and eviction is a prefix cut.
func (t *Throttle) evict(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(t.window) && !t.window[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		t.window = append(t.window[:0], t.window[i:]...)
	}
}

func (t *Throttle) sum() int64 {
	var total int64
	for _, e := range t.window {
		total += e.Amount
	}
	return total
}
