package scheduler

import (
	"FeeMint/internal/event"
	"fmt"
	"time"
)

// State is the scheduler's position in the mint cycle.
type State int32

const (
	StateIdle      State = iota // No accrual pending action
	StateAccruing               // Accrued amount below trigger threshold
	StateReady                  // Threshold met, mint on next processed event
	StateCongested              // Base fee spike forces Ready regardless of threshold
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAccruing:
		return "Accruing"
	case StateReady:
		return "Ready"
	case StateCongested:
		return "Congested"
	default:
		return "Unknown"
	}
}

// Reason records which transition armed a mint.
type Reason int32

const (
	ReasonNone      Reason = iota
	ReasonThreshold        // accrued >= minMintThreshold
	ReasonInterval         // time since last mint >= maxMintInterval
	ReasonCongested        // observed base fee above multiplier × baseline
)

func (r Reason) String() string {
	switch r {
	case ReasonThreshold:
		return "threshold"
	case ReasonInterval:
		return "interval"
	case ReasonCongested:
		return "congested"
	default:
		return "none"
	}
}

// Config holds the scheduler policy knobs.
type Config struct {
	// MinMintThreshold is the accrued amount (value units) that arms a mint.
	MinMintThreshold int64

	// MaxMintInterval bounds staleness: a mint is forced once this long has
	// passed since the last one, even for tiny funds.
	MaxMintInterval time.Duration

	// CongestionMultiplier (RatioConfig scale) and BaselineFee define the
	// congestion trigger: observed base fee > multiplier × baseline.
	CongestionMultiplier int64
	BaselineFee          int64

	// FeeTolerance caps network transaction-fee spend (value units per
	// trailing day). When exceeded, the threshold trigger is suppressed to
	// stretch the mint interval; the staleness and congestion triggers still
	// fire. 0 disables the budget.
	FeeTolerance int64
}

// Validate checks the policy knobs at startup.
func (c Config) Validate() error {
	if c.MinMintThreshold < 0 {
		return fmt.Errorf("%w: negative min mint threshold %d", event.ErrInvalidInput, c.MinMintThreshold)
	}
	if c.MaxMintInterval <= 0 {
		return fmt.Errorf("%w: max mint interval must be positive, got %s", event.ErrInvalidInput, c.MaxMintInterval)
	}
	if c.CongestionMultiplier < 0 {
		return fmt.Errorf("%w: negative congestion multiplier %d", event.ErrInvalidInput, c.CongestionMultiplier)
	}
	if c.BaselineFee < 0 {
		return fmt.Errorf("%w: negative baseline fee %d", event.ErrInvalidInput, c.BaselineFee)
	}
	if c.FeeTolerance < 0 {
		return fmt.Errorf("%w: negative fee tolerance %d", event.ErrInvalidInput, c.FeeTolerance)
	}
	return nil
}

// Scheduler decides, per ledger-close event, whether to mint now or keep
// accruing. Two goals pull against each other: few transactions under normal
// load, but a higher mint frequency during fee spikes so a single deferred
// mint never becomes disproportionately expensive or misses cap headroom.
//
// Not thread-safe — engine-loop owned. Initial state: Accruing with zero
// accrued. There is no terminal state; shutdown just stops feeding events.
type Scheduler struct {
	cfg        Config
	state      State
	reason     Reason
	congestion *CongestionTracker
	spend      *SpendTracker
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		cfg:        cfg,
		state:      StateAccruing,
		congestion: NewCongestionTracker(DefaultSampleWindow),
		spend:      NewSpendTracker(),
	}, nil
}

// Observe feeds a network base-fee sample into the congestion window.
func (s *Scheduler) Observe(sample event.FeeSample) {
	s.congestion.Observe(sample)
}

// RecordTxFee records ledger transaction fees paid for a submitted mint.
func (s *Scheduler) RecordTxFee(fee int64, now time.Time) {
	s.spend.Record(fee, now)
}

// Evaluate advances the state machine for one ledger-close event and returns
// the resulting state. Congested and Ready both mean "mint on this event".
func (s *Scheduler) Evaluate(accrued int64, lastMintTime, now time.Time) State {
	// A failed attempt left us Ready; stay armed until the mint lands.
	if s.state == StateReady || s.state == StateCongested {
		return s.state
	}

	if s.congestion.Elevated(s.cfg.BaselineFee, s.cfg.CongestionMultiplier, now) {
		s.state = StateCongested
		s.reason = ReasonCongested
		return s.state
	}

	if !lastMintTime.IsZero() && now.Sub(lastMintTime) >= s.cfg.MaxMintInterval {
		s.state = StateReady
		s.reason = ReasonInterval
		return s.state
	}

	overBudget := s.cfg.FeeTolerance > 0 && s.spend.TrailingDay(now) >= s.cfg.FeeTolerance
	if accrued >= s.cfg.MinMintThreshold && !overBudget {
		s.state = StateReady
		s.reason = ReasonThreshold
		return s.state
	}

	if accrued > 0 {
		s.state = StateAccruing
	} else {
		s.state = StateIdle
	}
	s.reason = ReasonNone
	return s.state
}

// AfterMintAttempt transitions out of the mint decision. A successful mint
// returns to Idle/Accruing depending on the residual; a failed attempt stays
// Ready so the next ledger-close event retries immediately.
func (s *Scheduler) AfterMintAttempt(success bool, residualAccrued int64) {
	if !success {
		s.state = StateReady
		return
	}
	s.reason = ReasonNone
	if residualAccrued > 0 {
		s.state = StateAccruing
	} else {
		s.state = StateIdle
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

// TriggerReason returns what armed the pending mint (ReasonNone otherwise).
func (s *Scheduler) TriggerReason() Reason {
	return s.reason
}

// TrailingDaySpend returns transaction fees paid in the trailing 24 hours.
func (s *Scheduler) TrailingDaySpend(now time.Time) int64 {
	return s.spend.TrailingDay(now)
}

// CongestionSamples returns how many base-fee samples sit inside the
// congestion window as of now.
func (s *Scheduler) CongestionSamples(now time.Time) int {
	return s.congestion.SampleCount(now)
}

// Restore sets the state from a checkpoint on warm start.
func (s *Scheduler) Restore(state State) {
	s.state = state
}
