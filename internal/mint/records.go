package mint

import (
	"FeeMint/internal/event"
	"context"
)

// DBRecordChecker is the durable-side lookup for the mint record log.
type DBRecordChecker interface {
	HasMintRecord(ctx context.Context, fundID string, ledgerSequence uint64) (bool, error)
}

// RecordLog answers "was ledger sequence N already minted?" with a two-tier
// lookup: an in-memory set covering the current run (warmed from recent
// records at startup), then the durable store.
//
// Unlike event dedup, a record-log miss here is not recoverable by guessing:
// submitting on a false negative risks a double mint. A store error therefore
// surfaces as transient so the engine defers the event instead of submitting.
//
// Not thread-safe — engine-loop owned.
type RecordLog struct {
	fundID string
	seen   map[uint64]struct{}
	db     DBRecordChecker
}

func NewRecordLog(fundID string, db DBRecordChecker) *RecordLog {
	return &RecordLog{
		fundID: fundID,
		seen:   make(map[uint64]struct{}),
		db:     db,
	}
}

// Has checks whether ledgerSequence was already minted.
func (rl *RecordLog) Has(ctx context.Context, ledgerSequence uint64) (bool, error) {
	if _, ok := rl.seen[ledgerSequence]; ok {
		return true, nil
	}

	if rl.db != nil {
		found, err := rl.db.HasMintRecord(ctx, rl.fundID, ledgerSequence)
		if err != nil {
			return false, &event.TransientIOError{Op: "submit", Err: err}
		}
		if found {
			rl.seen[ledgerSequence] = struct{}{}
			return true, nil
		}
	}

	return false, nil
}

// MarkMinted records a successful mint for the current run.
func (rl *RecordLog) MarkMinted(ledgerSequence uint64) {
	rl.seen[ledgerSequence] = struct{}{}
}

// Warm preloads recent ledger sequences on restart so the hot path avoids
// cold store lookups for the sequences most likely to be replayed.
func (rl *RecordLog) Warm(sequences []uint64) {
	for _, seq := range sequences {
		rl.seen[seq] = struct{}{}
	}
}

// Size returns the number of sequences tracked in memory.
func (rl *RecordLog) Size() int {
	return len(rl.seen)
}
