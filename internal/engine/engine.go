package engine

import (
	"FeeMint/internal/accrual"
	"FeeMint/internal/event"
	"FeeMint/internal/mint"
	"FeeMint/internal/observability"
	"FeeMint/internal/scheduler"
	"FeeMint/internal/throttle"
	"FeeMint/internal/valuation"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the per-fund engine policy.
type Config struct {
	FundID string

	// AnnualRate is the management fee fraction, RateConfig scale, in [0, 1).
	AnnualRate int64

	// DailyCap bounds fee minted per trailing 24h window (0 = disabled).
	DailyCap int64

	// FundCreated seeds LastMintTime/LastAccrualTime when no persisted state
	// exists.
	FundCreated time.Time

	Scheduler scheduler.Config
}

// Validate checks the engine policy at startup.
func (c Config) Validate() error {
	if c.FundID == "" {
		return fmt.Errorf("%w: empty fund id", event.ErrInvalidInput)
	}
	if c.AnnualRate < 0 || c.AnnualRate >= accrual.RateConfig.Scale {
		return fmt.Errorf("%w: annual rate %d outside [0, %d)", event.ErrInvalidInput, c.AnnualRate, accrual.RateConfig.Scale)
	}
	if c.DailyCap < 0 {
		return fmt.Errorf("%w: negative daily cap %d", event.ErrInvalidInput, c.DailyCap)
	}
	if c.FundCreated.IsZero() {
		return fmt.Errorf("%w: fund creation time required", event.ErrInvalidInput)
	}
	return c.Scheduler.Validate()
}

// CheckpointOutput is one durable write unit: the post-event state snapshot
// plus the mint record when a mint was committed during the event.
type CheckpointOutput struct {
	State  FeeState
	Record *mint.MintRecord
}

// Engine processes the ledger-close event stream for one fund: accrue owed
// fee, clip against the daily cap, decide mint-or-defer, submit, checkpoint.
// Not re-entrant — all calls must come from the single-owner Runner loop.
type Engine struct {
	cfg        Config
	st         FeeState
	throttle   *throttle.Throttle
	sched      *scheduler.Scheduler
	submitter  *mint.Submitter
	valuations valuation.Provider

	// checkpointChan uses BLOCKING sends: if the persistence worker falls
	// behind, the engine stalls rather than losing a checkpoint.
	checkpointChan chan<- CheckpointOutput

	// pendingRecord carries a committed mint record from mintNow to the
	// end-of-event checkpoint so record and state land in one write.
	pendingRecord *mint.MintRecord

	log     zerolog.Logger
	metrics *observability.Metrics
}

func New(
	cfg Config,
	valuations valuation.Provider,
	submitter *mint.Submitter,
	checkpointChan chan<- CheckpointOutput,
	metrics *observability.Metrics,
	log zerolog.Logger,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	th, err := throttle.New(cfg.DailyCap)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:            cfg,
		throttle:       th,
		sched:          sched,
		submitter:      submitter,
		valuations:     valuations,
		checkpointChan: checkpointChan,
		log:            log.With().Str("fund", cfg.FundID).Logger(),
		metrics:        metrics,
		st: FeeState{
			FundID:          cfg.FundID,
			LastMintTime:    cfg.FundCreated,
			LastAccrualTime: cfg.FundCreated,
			SchedulerState:  scheduler.StateAccruing,
		},
	}, nil
}

// Restore replaces the default state with a persisted checkpoint.
func (e *Engine) Restore(st FeeState) {
	e.st = st.Clone()
	if e.st.LastMintTime.IsZero() {
		e.st.LastMintTime = e.cfg.FundCreated
	}
	if e.st.LastAccrualTime.IsZero() {
		e.st.LastAccrualTime = e.st.LastMintTime
	}
	e.throttle.Restore(e.st.DailyWindow, e.st.CarryForwardDeficit)
	e.sched.Restore(e.st.SchedulerState)
}

// State returns a copy of the current fee state.
func (e *Engine) State() FeeState {
	return e.st.Clone()
}

// ObserveFee feeds a network base-fee sample into the congestion window.
func (e *Engine) ObserveFee(sample event.FeeSample) {
	e.sched.Observe(sample)
}

// ProcessLedgerClose handles one ledger-close event in strict order:
// duplicate rejection, valuation fetch, accrual, scheduling, throttled mint,
// sequence advance, checkpoint. A transient failure before the sequence
// advance leaves the state byte-identical, so redelivery of the same event
// retries cleanly.
func (e *Engine) ProcessLedgerClose(ctx context.Context, evt *event.LedgerClose) error {
	start := time.Now()

	// Step 1: duplicate / out-of-order rejection.
	if evt.Sequence <= e.st.LastLedgerSequence {
		if e.metrics != nil {
			e.metrics.EventsRejected.WithLabelValues(e.cfg.FundID, "duplicate").Inc()
		}
		e.log.Debug().
			Uint64("sequence", evt.Sequence).
			Uint64("last_sequence", e.st.LastLedgerSequence).
			Msg("duplicate or out-of-order ledger close ignored")
		return event.ErrDuplicateEvent
	}

	// Congestion signal carried on the close event itself.
	if evt.BaseFee > 0 {
		e.sched.Observe(event.FeeSample{Timestamp: evt.CloseTime, ObservedBaseFee: evt.BaseFee})
	}

	// Step 2: valuation fetch. Unavailable → defer the event entirely. No
	// state was mutated, and LastAccrualTime still points at the last accrued
	// close, so the fee for this interval is picked up by the next event.
	valStart := time.Now()
	val, err := e.valuations.GetValuation(ctx, e.cfg.FundID, evt.CloseTime)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ValuationErrors.WithLabelValues(e.cfg.FundID).Inc()
			e.metrics.EventsDeferred.WithLabelValues(e.cfg.FundID, "valuation").Inc()
		}
		e.log.Warn().Err(err).Uint64("sequence", evt.Sequence).Msg("valuation unavailable, deferring event")
		return err
	}
	if e.metrics != nil {
		e.metrics.ValuationLatency.WithLabelValues(e.cfg.FundID).Observe(time.Since(valStart).Seconds())
	}

	// Step 3: accrue owed fee for the elapsed interval.
	elapsed := int64(evt.CloseTime.Sub(e.st.LastAccrualTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	owed, remainder, err := accrual.ComputeOwedWithRemainder(val.FundValue, e.cfg.AnnualRate, elapsed, e.st.AccrualRemainder)
	if err != nil {
		return fmt.Errorf("accrual at sequence %d: %w", evt.Sequence, err)
	}
	e.st.AccruedUnminted += owed
	e.st.AccrualRemainder = remainder
	e.st.LastAccrualTime = evt.CloseTime
	if e.metrics != nil && owed > 0 {
		e.metrics.FeeAccruedTotal.WithLabelValues(e.cfg.FundID).Add(float64(owed))
	}

	// Step 4: scheduler decision over everything pending (accrued + deficit).
	pending := e.st.AccruedUnminted + e.throttle.Deficit()
	state := e.sched.Evaluate(pending, e.st.LastMintTime, evt.CloseTime)

	// Step 5: throttled mint when armed.
	if state == scheduler.StateReady || state == scheduler.StateCongested {
		if err := e.mintNow(ctx, evt, val); err != nil {
			// Transient submit failures defer the whole event: the sequence
			// is not advanced, so redelivery retries the mint. Rejections
			// advance past the event but keep the accrual for the operator.
			if event.IsTransient(err) {
				if e.metrics != nil {
					e.metrics.EventsDeferred.WithLabelValues(e.cfg.FundID, "submit").Inc()
				}
				return err
			}
			if event.IsRejected(err) {
				e.finishEvent(evt, start)
				return err
			}
			return err
		}
	}

	e.finishEvent(evt, start)
	return nil
}

// mintNow runs the throttle admit + submit + commit sequence.
func (e *Engine) mintNow(ctx context.Context, evt *event.LedgerClose, val valuation.Valuation) error {
	decision, err := e.throttle.Admit(e.st.AccruedUnminted, evt.CloseTime)
	if err != nil {
		return err
	}

	reason := e.sched.TriggerReason()

	if decision.AmountToMintNow == 0 {
		// Cap headroom exhausted: everything pending rolls into the deficit
		// and the window invariant holds with no submission at all.
		if e.metrics != nil && decision.NewDeficit > 0 {
			e.metrics.CapClipped.WithLabelValues(e.cfg.FundID).Inc()
		}
		e.throttle.Commit(decision)
		e.st.AccruedUnminted = 0
		e.sched.AfterMintAttempt(true, decision.NewDeficit)
		if decision.NewDeficit > 0 {
			e.log.Info().
				Int64("deficit", decision.NewDeficit).
				Msg("mint deferred: daily cap exhausted, carrying forward")
		}
		return nil
	}

	submitStart := time.Now()
	outcome, err := e.submitter.Submit(ctx, evt.Sequence, decision.AmountToMintNow, val, evt.CloseTime)
	if err != nil {
		e.sched.AfterMintAttempt(false, 0)
		kind := "transient"
		if event.IsRejected(err) {
			kind = "rejected"
		}
		if e.metrics != nil {
			e.metrics.MintsFailed.WithLabelValues(e.cfg.FundID, kind).Inc()
		}
		e.log.Error().Err(err).
			Uint64("sequence", evt.Sequence).
			Int64("amount", decision.AmountToMintNow).
			Msg("mint attempt failed, accrual preserved")
		return err
	}

	// Committed (or already committed by a prior attempt whose confirmation
	// was lost). Either way the minted amount is on the ledger: record it in
	// the window, fold the residual into the deficit, reset accrual.
	e.throttle.Commit(decision)
	e.st.AccruedUnminted = 0
	e.st.LastMintTime = evt.CloseTime
	e.sched.AfterMintAttempt(true, decision.NewDeficit)

	if outcome.Record != nil {
		e.pendingRecord = outcome.Record
		e.sched.RecordTxFee(outcome.Record.TxFeePaid, evt.CloseTime)
	}

	if e.metrics != nil {
		e.metrics.SubmitDuration.WithLabelValues(e.cfg.FundID).Observe(time.Since(submitStart).Seconds())
		e.metrics.MintsCommitted.WithLabelValues(e.cfg.FundID).Inc()
		e.metrics.MintedAmount.WithLabelValues(e.cfg.FundID).Add(float64(decision.AmountToMintNow))
		e.metrics.MintTriggers.WithLabelValues(e.cfg.FundID, reason.String()).Inc()
		if reason == scheduler.ReasonCongested {
			e.metrics.CongestionForced.WithLabelValues(e.cfg.FundID).Inc()
		}
		if outcome.Record != nil {
			e.metrics.SharesMinted.WithLabelValues(e.cfg.FundID).Add(float64(outcome.Record.SharesMinted))
			e.metrics.TxFeesPaid.WithLabelValues(e.cfg.FundID).Add(float64(outcome.Record.TxFeePaid))
		}
	}

	return nil
}

// finishEvent advances the sequence, publishes gauges, and checkpoints.
func (e *Engine) finishEvent(evt *event.LedgerClose, start time.Time) {
	e.st.LastLedgerSequence = evt.Sequence
	e.st.DailyWindow, e.st.CarryForwardDeficit = e.throttle.Snapshot()
	e.st.SchedulerState = e.sched.State()

	record := e.pendingRecord
	e.pendingRecord = nil

	if e.checkpointChan != nil {
		e.checkpointChan <- CheckpointOutput{State: e.st.Clone(), Record: record}
	}

	if e.metrics != nil {
		e.metrics.EventsProcessed.WithLabelValues(e.cfg.FundID).Inc()
		e.metrics.EventDuration.WithLabelValues(e.cfg.FundID).Observe(time.Since(start).Seconds())
		e.metrics.LastLedgerSeq.WithLabelValues(e.cfg.FundID).Set(float64(evt.Sequence))
		e.metrics.AccruedUnminted.WithLabelValues(e.cfg.FundID).Set(float64(e.st.AccruedUnminted))
		e.metrics.CarryDeficit.WithLabelValues(e.cfg.FundID).Set(float64(e.st.CarryForwardDeficit))
		e.metrics.WindowSum.WithLabelValues(e.cfg.FundID).Set(float64(e.throttle.WindowSum(evt.CloseTime)))
		e.metrics.SchedulerState.WithLabelValues(e.cfg.FundID).Set(float64(e.sched.State()))
		e.metrics.CongestionSamples.WithLabelValues(e.cfg.FundID).Set(float64(e.sched.CongestionSamples(evt.CloseTime)))
		e.metrics.TrailingTxSpend.WithLabelValues(e.cfg.FundID).Set(float64(e.sched.TrailingDaySpend(evt.CloseTime)))
	}
}
