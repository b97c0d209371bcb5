package scheduler_test

import (
	"FeeMint/internal/accrual"
	"FeeMint/internal/event"
	"FeeMint/internal/scheduler"
	"errors"
	"testing"
	"time"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() scheduler.Config {
	return scheduler.Config{
		MinMintThreshold:     1_000,
		MaxMintInterval:      6 * time.Hour,
		CongestionMultiplier: 3 * accrual.RatioConfig.Scale,
		BaselineFee:          100,
	}
}

func mustScheduler(t *testing.T, cfg scheduler.Config) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(cfg)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

// ============================================================================
// Test: trigger conditions
// ============================================================================

func TestEvaluate_ThresholdArmsReady(t *testing.T) {
	s := mustScheduler(t, testConfig())

	state := s.Evaluate(1_000, baseTime.Add(-time.Hour), baseTime)
	if state != scheduler.StateReady {
		t.Errorf("state: got %v, want Ready", state)
	}
	if s.TriggerReason() != scheduler.ReasonThreshold {
		t.Errorf("reason: got %v, want threshold", s.TriggerReason())
	}
}

func TestEvaluate_BelowThresholdAccrues(t *testing.T) {
	s := mustScheduler(t, testConfig())

	if state := s.Evaluate(999, baseTime.Add(-time.Hour), baseTime); state != scheduler.StateAccruing {
		t.Errorf("state: got %v, want Accruing", state)
	}
	if state := s.Evaluate(0, baseTime.Add(-time.Hour), baseTime); state != scheduler.StateIdle {
		t.Errorf("state: got %v, want Idle", state)
	}
}

func TestEvaluate_IntervalForcesMint(t *testing.T) {
	s := mustScheduler(t, testConfig())

	// Tiny accrual, but 6 hours since the last mint.
	state := s.Evaluate(1, baseTime.Add(-6*time.Hour), baseTime)
	if state != scheduler.StateReady {
		t.Errorf("state: got %v, want Ready", state)
	}
	if s.TriggerReason() != scheduler.ReasonInterval {
		t.Errorf("reason: got %v, want interval", s.TriggerReason())
	}
}

func TestEvaluate_CongestionForcesMintBelowThreshold(t *testing.T) {
	s := mustScheduler(t, testConfig())

	// Average base fee 400 > 3 x 100 baseline.
	for i := 0; i < 5; i++ {
		s.Observe(event.FeeSample{
			Timestamp:       baseTime.Add(time.Duration(i) * time.Second),
			ObservedBaseFee: 400,
		})
	}

	state := s.Evaluate(10, baseTime.Add(-time.Hour), baseTime.Add(5*time.Second))
	if state != scheduler.StateCongested {
		t.Errorf("state: got %v, want Congested", state)
	}
	if s.TriggerReason() != scheduler.ReasonCongested {
		t.Errorf("reason: got %v, want congested", s.TriggerReason())
	}
}

func TestEvaluate_FeeAtMultipleIsNotCongested(t *testing.T) {
	s := mustScheduler(t, testConfig())

	// Exactly 3x baseline: strictly-greater comparison, so not congested.
	s.Observe(event.FeeSample{Timestamp: baseTime, ObservedBaseFee: 300})

	state := s.Evaluate(10, baseTime.Add(-time.Hour), baseTime)
	if state != scheduler.StateAccruing {
		t.Errorf("state: got %v, want Accruing", state)
	}
}

// ============================================================================
// Test: armed state and mint attempts
// ============================================================================

func TestEvaluate_StaysArmedUntilMintLands(t *testing.T) {
	s := mustScheduler(t, testConfig())

	if state := s.Evaluate(2_000, baseTime.Add(-time.Hour), baseTime); state != scheduler.StateReady {
		t.Fatalf("state: got %v, want Ready", state)
	}

	// Next evaluation with a smaller pending amount still reports Ready.
	if state := s.Evaluate(1, baseTime.Add(-time.Hour), baseTime.Add(5*time.Second)); state != scheduler.StateReady {
		t.Errorf("state after re-evaluate: got %v, want Ready", state)
	}
}

func TestAfterMintAttempt(t *testing.T) {
	s := mustScheduler(t, testConfig())
	s.Evaluate(2_000, baseTime.Add(-time.Hour), baseTime)

	s.AfterMintAttempt(false, 0)
	if s.State() != scheduler.StateReady {
		t.Errorf("after failed attempt: got %v, want Ready", s.State())
	}

	s.AfterMintAttempt(true, 500)
	if s.State() != scheduler.StateAccruing {
		t.Errorf("after success with residual: got %v, want Accruing", s.State())
	}

	s.AfterMintAttempt(true, 0)
	if s.State() != scheduler.StateIdle {
		t.Errorf("after clean success: got %v, want Idle", s.State())
	}
}

// ============================================================================
// Test: network fee budget
// ============================================================================

func TestEvaluate_FeeBudgetSuppressesThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.FeeTolerance = 50
	s := mustScheduler(t, cfg)

	s.RecordTxFee(50, baseTime.Add(-time.Hour))

	// Threshold is met but the daily tx-fee budget is spent.
	state := s.Evaluate(5_000, baseTime.Add(-time.Hour), baseTime)
	if state != scheduler.StateAccruing {
		t.Errorf("state: got %v, want Accruing (budget spent)", state)
	}

	// The staleness trigger is not suppressed by the budget.
	state = s.Evaluate(5_000, baseTime.Add(-7*time.Hour), baseTime)
	if state != scheduler.StateReady {
		t.Errorf("state: got %v, want Ready via interval", state)
	}
	if s.TriggerReason() != scheduler.ReasonInterval {
		t.Errorf("reason: got %v, want interval", s.TriggerReason())
	}
}

func TestEvaluate_FeeBudgetExpiresWithWindow(t *testing.T) {
	cfg := testConfig()
	cfg.FeeTolerance = 50
	s := mustScheduler(t, cfg)

	s.RecordTxFee(50, baseTime.Add(-25*time.Hour))

	state := s.Evaluate(5_000, baseTime.Add(-time.Hour), baseTime)
	if state != scheduler.StateReady {
		t.Errorf("state: got %v, want Ready (spend expired)", state)
	}
}

func TestSpendAndSampleGauges(t *testing.T) {
	// The per-event gauge exports read back through these accessors.
	s := mustScheduler(t, testConfig())

	s.RecordTxFee(30, baseTime.Add(-time.Hour))
	s.RecordTxFee(20, baseTime.Add(-25*time.Hour)) // outside the trailing day
	if got := s.TrailingDaySpend(baseTime); got != 30 {
		t.Errorf("trailing day spend: got %d, want 30", got)
	}

	s.Observe(event.FeeSample{Timestamp: baseTime.Add(-10 * time.Minute), ObservedBaseFee: 100})
	s.Observe(event.FeeSample{Timestamp: baseTime.Add(-time.Minute), ObservedBaseFee: 100})
	if got := s.CongestionSamples(baseTime); got != 1 {
		t.Errorf("congestion samples: got %d, want 1", got)
	}
}

// ============================================================================
// Test: congestion tracker
// ============================================================================

func TestCongestionTracker_NoSamplesNotElevated(t *testing.T) {
	ct := scheduler.NewCongestionTracker(scheduler.DefaultSampleWindow)
	if ct.Elevated(100, 3*accrual.RatioConfig.Scale, baseTime) {
		t.Error("empty window should not be elevated")
	}
}

func TestCongestionTracker_PruneExpiredSamples(t *testing.T) {
	ct := scheduler.NewCongestionTracker(scheduler.DefaultSampleWindow)
	ct.Observe(event.FeeSample{Timestamp: baseTime, ObservedBaseFee: 10_000})

	// Spike is inside the window now, outside it ten minutes later.
	if !ct.Elevated(100, 3*accrual.RatioConfig.Scale, baseTime.Add(time.Minute)) {
		t.Error("spike inside window should be elevated")
	}
	if ct.Elevated(100, 3*accrual.RatioConfig.Scale, baseTime.Add(10*time.Minute)) {
		t.Error("expired spike should not be elevated")
	}
}

func TestCongestionTracker_FractionalMultiplier(t *testing.T) {
	ct := scheduler.NewCongestionTracker(scheduler.DefaultSampleWindow)
	ct.Observe(event.FeeSample{Timestamp: baseTime, ObservedBaseFee: 160})

	// 1.5x baseline of 100 = 150: an average of 160 is elevated.
	multiplier := int64(1.5 * float64(accrual.RatioConfig.Scale))
	if !ct.Elevated(100, multiplier, baseTime) {
		t.Error("160 should exceed 1.5 x 100")
	}
}

// ============================================================================
// Test: config validation
// ============================================================================

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*scheduler.Config)
	}{
		{"negative threshold", func(c *scheduler.Config) { c.MinMintThreshold = -1 }},
		{"zero interval", func(c *scheduler.Config) { c.MaxMintInterval = 0 }},
		{"negative multiplier", func(c *scheduler.Config) { c.CongestionMultiplier = -1 }},
		{"negative baseline", func(c *scheduler.Config) { c.BaselineFee = -1 }},
		{"negative tolerance", func(c *scheduler.Config) { c.FeeTolerance = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if _, err := scheduler.New(cfg); !errors.Is(err, event.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}
}
