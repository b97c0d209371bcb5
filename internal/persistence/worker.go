package persistence

import (
	"FeeMint/internal/engine"
	"FeeMint/internal/mint"
	"FeeMint/internal/observability"
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CheckpointWorker drains the checkpoint channel and writes state snapshots
// plus mint records to Postgres. The engines use BLOCKING sends on this
// channel, so if the worker falls behind, event processing stalls rather than
// losing a checkpoint.
//
// Batching keeps only the latest snapshot per fund (state writes are
// last-wins upserts) but preserves every mint record.
type CheckpointWorker struct {
	store        *Store
	inputChan    <-chan engine.CheckpointOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger

	// notify receives each mint record after its transaction commits, for
	// outbound publishing. Sends are non-blocking; a slow publisher must not
	// stall persistence.
	notify chan<- mint.MintRecord
}

// NotifyMints sets the channel that receives committed mint records.
// Must be called before Run.
func (w *CheckpointWorker) NotifyMints(ch chan<- mint.MintRecord) {
	w.notify = ch
}

func NewCheckpointWorker(
	store *Store,
	inputChan <-chan engine.CheckpointOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *CheckpointWorker {
	if batchSize <= 0 {
		batchSize = 64
	}
	if flushTimeout <= 0 {
		flushTimeout = 200 * time.Millisecond
	}
	return &CheckpointWorker{
		store:        store,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          log.With().Str("component", "checkpoint_worker").Logger(),
	}
}

// Run drains checkpoints until ctx is cancelled or the channel is closed,
// flushing when the batch is full or the flush timeout expires. On
// cancellation the worker keeps consuming until the producers close the
// channel, then runs a final flush so no accepted checkpoint is dropped.
func (w *CheckpointWorker) Run(ctx context.Context) error {
	batch := make([]engine.CheckpointOutput, 0, w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			batch = w.drainPending(batch)
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.log.Error().Err(err).Int("batch", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.log.Error().Err(err).Int("batch", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, out)
			if len(batch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("batch flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := w.flushWithRetry(ctx, batch); err != nil {
					w.log.Error().Err(err).Msg("timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// drainPending consumes the channel until the producers close it. Engines
// still finishing an in-flight event after the cancel must never block on
// their final checkpoint send.
func (w *CheckpointWorker) drainPending(batch []engine.CheckpointOutput) []engine.CheckpointOutput {
	for out := range w.inputChan {
		batch = append(batch, out)
	}
	return batch
}

// flushWithRetry retries with exponential backoff, indefinitely, until the
// write succeeds or the context is cancelled. Checkpoints are never dropped;
// on cancellation one last attempt runs with a background context.
func (w *CheckpointWorker) flushWithRetry(ctx context.Context, batch []engine.CheckpointOutput) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("batch", len(batch)).
				Msg("checkpoint flush retry")
			if w.metrics != nil {
				w.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				return w.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				w.log.Info().Int("retries", attempt).Msg("checkpoint flush recovered")
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("flush").Inc()
		}
	}
}

// flush writes the batch in one transaction: the latest state per fund and
// every mint record in arrival order.
func (w *CheckpointWorker) flush(ctx context.Context, batch []engine.CheckpointOutput) error {
	start := time.Now()

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	// Last snapshot per fund wins; earlier ones in the batch are superseded.
	latest := make(map[string]int, 4)
	records := 0
	for i, out := range batch {
		latest[out.State.FundID] = i
		if out.Record != nil {
			if err := w.store.appendRecordTx(ctx, tx, out.Record); err != nil {
				if w.metrics != nil {
					w.metrics.PersistErrors.WithLabelValues("write_record").Inc()
				}
				return err
			}
			records++
		}
	}
	for _, i := range latest {
		if err := w.store.saveStateTx(ctx, tx, batch[i].State); err != nil {
			if w.metrics != nil {
				w.metrics.PersistErrors.WithLabelValues("write_state").Inc()
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
		w.metrics.CheckpointsWritten.Add(float64(len(batch)))
		w.metrics.MintRecordsWritten.Add(float64(records))
		w.metrics.PersistLastSequence.Set(float64(batch[len(batch)-1].State.LastLedgerSequence))
	}

	if w.notify != nil {
		for _, out := range batch {
			if out.Record == nil {
				continue
			}
			select {
			case w.notify <- *out.Record:
			default:
				w.log.Warn().
					Str("fund_id", out.Record.FundID).
					Uint64("ledger_sequence", out.Record.LedgerSequence).
					Msg("mint notification dropped, publisher backlogged")
			}
		}
	}

	return nil
}
