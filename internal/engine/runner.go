package engine

import (
	"FeeMint/internal/event"
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Task is one ledger-close event handed to a fund's Runner. Done receives
// exactly one result per task, nil on success or rejection-with-advance.
type Task struct {
	Close *event.LedgerClose
	Done  chan<- error
}

// Runner is the per-fund serialization point: a single-owner loop that feeds
// one Engine, so concurrent processing of two events for the same fund is
// impossible by construction. Independent funds run their own Runners fully
// in parallel.
type Runner struct {
	engine  *Engine
	tasks   chan Task
	samples chan event.FeeSample
	log     zerolog.Logger
}

func NewRunner(eng *Engine, queueSize int, log zerolog.Logger) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Runner{
		engine:  eng,
		tasks:   make(chan Task, queueSize),
		samples: make(chan event.FeeSample, queueSize),
		log:     log,
	}
}

// Engine exposes the owned engine for read-only state queries.
func (r *Runner) Engine() *Engine {
	return r.engine
}

// Submit enqueues a ledger-close task. Blocks when the queue is full
// (backpressure toward the ingestion layer).
func (r *Runner) Submit(ctx context.Context, task Task) error {
	select {
	case r.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ObserveFee enqueues a base-fee sample, dropping when the queue is full —
// congestion samples are advisory and never worth blocking the feed.
func (r *Runner) ObserveFee(sample event.FeeSample) {
	select {
	case r.samples <- sample:
	default:
	}
}

// Run processes tasks until ctx is cancelled. In-flight work completes
// naturally on shutdown; the final checkpoint has already been emitted by the
// engine before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sample := <-r.samples:
			r.engine.ObserveFee(sample)

		case task := <-r.tasks:
			err := r.engine.ProcessLedgerClose(ctx, task.Close)
			switch {
			case err == nil:
			case errors.Is(err, event.ErrDuplicateEvent):
				// Logged inside the engine; not a failure.
				err = nil
			case event.IsRejected(err):
				// Accrual preserved, sequence advanced; the operator gets
				// the alert, redelivery would not help.
				r.log.Error().Err(err).Msg("mint rejected by ledger, operator intervention required")
				err = nil
			case event.IsTransient(err):
				// Deferred; the caller NAKs so the event is redelivered.
			default:
				r.log.Error().Err(err).Msg("event processing failed")
			}

			if task.Done != nil {
				task.Done <- err
			}
		}
	}
}
