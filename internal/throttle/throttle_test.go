package throttle_test

import (
	"FeeMint/internal/event"
	"FeeMint/internal/throttle"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func mustThrottle(t *testing.T, cap int64) *throttle.Throttle {
	t.Helper()
	th, err := throttle.New(cap)
	if err != nil {
		t.Fatalf("new throttle: %v", err)
	}
	return th
}

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ============================================================================
// Test: Admit / Commit
// ============================================================================

func TestAdmit_PartialUnderCap(t *testing.T) {
	// Cap 100, window already holds 95: a candidate of 20 mints 5 now and
	// carries 15 forward.
	th := mustThrottle(t, 100)
	th.Restore([]throttle.Entry{{Timestamp: baseTime.Add(-time.Hour), Amount: 95}}, 0)

	d, err := th.Admit(20, baseTime)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.AmountToMintNow != 5 {
		t.Errorf("amount now: got %d, want 5", d.AmountToMintNow)
	}
	if d.NewDeficit != 15 {
		t.Errorf("deficit: got %d, want 15", d.NewDeficit)
	}

	th.Commit(d)
	if sum := th.WindowSum(baseTime); sum != 100 {
		t.Errorf("window sum after commit: got %d, want 100", sum)
	}
	if th.Deficit() != 15 {
		t.Errorf("deficit after commit: got %d, want 15", th.Deficit())
	}
}

func TestAdmit_DeficitDrainsWhenWindowSlides(t *testing.T) {
	th := mustThrottle(t, 100)
	th.Restore([]throttle.Entry{{Timestamp: baseTime, Amount: 100}}, 40)

	// Cap exhausted right now: nothing mints, deficit grows.
	d, err := th.Admit(10, baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.AmountToMintNow != 0 {
		t.Errorf("amount now: got %d, want 0", d.AmountToMintNow)
	}
	if d.NewDeficit != 50 {
		t.Errorf("deficit: got %d, want 50", d.NewDeficit)
	}
	th.Commit(d)

	// 25 hours later the window entry has expired; the whole deficit fits.
	later := baseTime.Add(25 * time.Hour)
	d, err = th.Admit(0, later)
	if err != nil {
		t.Fatalf("admit after window slide: %v", err)
	}
	if d.AmountToMintNow != 50 {
		t.Errorf("amount now: got %d, want 50", d.AmountToMintNow)
	}
	if d.NewDeficit != 0 {
		t.Errorf("deficit: got %d, want 0", d.NewDeficit)
	}
}

func TestAdmit_UncommittedDecisionLeavesStateUntouched(t *testing.T) {
	// A failed submission never commits: window and deficit must be exactly
	// as before the attempt.
	th := mustThrottle(t, 100)
	th.Restore([]throttle.Entry{{Timestamp: baseTime.Add(-time.Hour), Amount: 30}}, 7)

	if _, err := th.Admit(50, baseTime); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if sum := th.WindowSum(baseTime); sum != 30 {
		t.Errorf("window sum: got %d, want 30", sum)
	}
	if th.Deficit() != 7 {
		t.Errorf("deficit: got %d, want 7", th.Deficit())
	}
}

func TestAdmit_CapDisabled(t *testing.T) {
	th := mustThrottle(t, 0)

	d, err := th.Admit(1_000_000_000, baseTime)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.AmountToMintNow != 1_000_000_000 {
		t.Errorf("amount now: got %d, want full candidate", d.AmountToMintNow)
	}
	if d.NewDeficit != 0 {
		t.Errorf("deficit: got %d, want 0", d.NewDeficit)
	}
}

func TestAdmit_CapDisabledPaysOutRestoredDeficit(t *testing.T) {
	// A deficit checkpointed under a cap survives the operator disabling the
	// cap: the next admit pays it out in full instead of writing it off.
	th := mustThrottle(t, 0)
	th.Restore(nil, 40)

	d, err := th.Admit(10, baseTime)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if d.AmountToMintNow != 50 {
		t.Errorf("amount now: got %d, want 50", d.AmountToMintNow)
	}
	if d.NewDeficit != 0 {
		t.Errorf("deficit: got %d, want 0", d.NewDeficit)
	}

	th.Commit(d)
	if th.Deficit() != 0 {
		t.Errorf("deficit after commit: got %d, want 0", th.Deficit())
	}
}

func TestAdmit_NegativeCandidate(t *testing.T) {
	th := mustThrottle(t, 100)
	_, err := th.Admit(-1, baseTime)
	if !errors.Is(err, event.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestNew_NegativeCap(t *testing.T) {
	_, err := throttle.New(-1)
	if !errors.Is(err, event.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

// ============================================================================
// Test: window invariant under randomized load
// ============================================================================

func TestWindowInvariant_Randomized(t *testing.T) {
	const dailyCap = 10_000
	th := mustThrottle(t, dailyCap)

	rng := rand.New(rand.NewSource(42))
	now := baseTime

	for i := 0; i < 5_000; i++ {
		now = now.Add(time.Duration(rng.Intn(600)) * time.Second)
		candidate := int64(rng.Intn(3_000))

		d, err := th.Admit(candidate, now)
		if err != nil {
			t.Fatalf("step %d: admit: %v", i, err)
		}

		// Simulate occasional submit failures that never commit.
		if rng.Intn(10) == 0 {
			continue
		}
		th.Commit(d)

		if sum := th.WindowSum(now); sum > dailyCap {
			t.Fatalf("step %d: window sum %d exceeds cap %d", i, sum, dailyCap)
		}
		if th.Deficit() < 0 {
			t.Fatalf("step %d: negative deficit %d", i, th.Deficit())
		}
	}
}

// ============================================================================
// Test: Snapshot / Restore
// ============================================================================

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	th := mustThrottle(t, 500)
	d, _ := th.Admit(200, baseTime)
	th.Commit(d)
	d, _ = th.Admit(450, baseTime.Add(time.Hour))
	th.Commit(d)

	entries, deficit := th.Snapshot()

	restored := mustThrottle(t, 500)
	restored.Restore(entries, deficit)

	now := baseTime.Add(2 * time.Hour)
	if got, want := restored.WindowSum(now), th.WindowSum(now); got != want {
		t.Errorf("window sum: got %d, want %d", got, want)
	}
	if restored.Deficit() != th.Deficit() {
		t.Errorf("deficit: got %d, want %d", restored.Deficit(), th.Deficit())
	}
}
