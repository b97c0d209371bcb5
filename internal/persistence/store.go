package persistence

import (
	"FeeMint/internal/engine"
	"FeeMint/internal/mint"
	"FeeMint/internal/scheduler"
	"FeeMint/internal/throttle"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists FeeState checkpoints and the append-only mint record log in
// Postgres. The mint_records unique index on (fund_id, ledger_sequence) is
// the durable half of the double-mint guard.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// windowEntryJSON is the serialized form of one daily-window entry.
type windowEntryJSON struct {
	TimestampUs int64 `json:"ts_us"`
	Amount      int64 `json:"amount"`
}

// LoadFeeState loads the persisted checkpoint for a fund, if any.
func (s *Store) LoadFeeState(ctx context.Context, fundID string) (engine.FeeState, bool, error) {
	query := `
		SELECT last_mint_time, last_accrual_time, accrued_unminted,
		       accrual_remainder, last_ledger_sequence, carry_forward_deficit,
		       daily_window, scheduler_state
		FROM feemint.fee_state
		WHERE fund_id = $1
	`

	var st engine.FeeState
	var windowRaw []byte
	var schedState int32
	var lastSeq int64

	err := s.db.QueryRowContext(ctx, query, fundID).Scan(
		&st.LastMintTime, &st.LastAccrualTime, &st.AccruedUnminted,
		&st.AccrualRemainder, &lastSeq, &st.CarryForwardDeficit,
		&windowRaw, &schedState,
	)
	if err == sql.ErrNoRows {
		return engine.FeeState{}, false, nil
	}
	if err != nil {
		return engine.FeeState{}, false, fmt.Errorf("load fee state for %s: %w", fundID, err)
	}

	var entries []windowEntryJSON
	if err := json.Unmarshal(windowRaw, &entries); err != nil {
		return engine.FeeState{}, false, fmt.Errorf("decode daily window for %s: %w", fundID, err)
	}

	st.FundID = fundID
	st.LastLedgerSequence = uint64(lastSeq)
	st.SchedulerState = scheduler.State(schedState)
	st.DailyWindow = make([]throttle.Entry, 0, len(entries))
	for _, e := range entries {
		st.DailyWindow = append(st.DailyWindow, throttle.Entry{
			Timestamp: time.UnixMicro(e.TimestampUs),
			Amount:    e.Amount,
		})
	}

	return st, true, nil
}

// SaveCheckpoint writes the state snapshot and, when present, the mint record
// in a single transaction. Idempotent: record conflicts are skipped, state is
// upserted last-wins.
func (s *Store) SaveCheckpoint(ctx context.Context, out engine.CheckpointOutput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.saveStateTx(ctx, tx, out.State); err != nil {
		return err
	}
	if out.Record != nil {
		if err := s.appendRecordTx(ctx, tx, out.Record); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) saveStateTx(ctx context.Context, tx *sql.Tx, st engine.FeeState) error {
	entries := make([]windowEntryJSON, 0, len(st.DailyWindow))
	for _, e := range st.DailyWindow {
		entries = append(entries, windowEntryJSON{TimestampUs: e.Timestamp.UnixMicro(), Amount: e.Amount})
	}
	windowRaw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode daily window: %w", err)
	}

	query := `
		INSERT INTO feemint.fee_state
			(fund_id, last_mint_time, last_accrual_time, accrued_unminted,
			 accrual_remainder, last_ledger_sequence, carry_forward_deficit,
			 daily_window, scheduler_state, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (fund_id) DO UPDATE SET
			last_mint_time = EXCLUDED.last_mint_time,
			last_accrual_time = EXCLUDED.last_accrual_time,
			accrued_unminted = EXCLUDED.accrued_unminted,
			accrual_remainder = EXCLUDED.accrual_remainder,
			last_ledger_sequence = EXCLUDED.last_ledger_sequence,
			carry_forward_deficit = EXCLUDED.carry_forward_deficit,
			daily_window = EXCLUDED.daily_window,
			scheduler_state = EXCLUDED.scheduler_state,
			updated_at = now()
	`

	_, err = tx.ExecContext(ctx, query,
		st.FundID, st.LastMintTime, st.LastAccrualTime, st.AccruedUnminted,
		st.AccrualRemainder, int64(st.LastLedgerSequence), st.CarryForwardDeficit,
		windowRaw, int32(st.SchedulerState),
	)
	return err
}

func (s *Store) appendRecordTx(ctx context.Context, tx *sql.Tx, r *mint.MintRecord) error {
	query := `
		INSERT INTO feemint.mint_records
			(record_id, fund_id, ledger_sequence, minted_at, amount,
			 shares_minted, fund_value_at_mint, tx_hash, tx_fee_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fund_id, ledger_sequence) DO NOTHING
	`

	_, err := tx.ExecContext(ctx, query,
		r.RecordID, r.FundID, int64(r.LedgerSequence), r.Timestamp, r.Amount,
		r.SharesMinted, r.FundValueAtMint, r.TxHash, r.TxFeePaid,
	)
	return err
}

// HasMintRecord implements mint.DBRecordChecker.
func (s *Store) HasMintRecord(ctx context.Context, fundID string, ledgerSequence uint64) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	query := `
		SELECT 1
		FROM feemint.mint_records
		WHERE fund_id = $1 AND ledger_sequence = $2
		LIMIT 1
	`

	var exists int
	err := s.db.QueryRowContext(lookupCtx, query, fundID, int64(ledgerSequence)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentMintSequences returns the most recent minted ledger sequences for
// warming the in-memory record log on restart.
func (s *Store) RecentMintSequences(ctx context.Context, fundID string, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT ledger_sequence
		FROM feemint.mint_records
		WHERE fund_id = $1
		ORDER BY ledger_sequence DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, uint64(seq))
	}
	return seqs, rows.Err()
}

// ListMintRecords returns the newest mint records for a fund, newest first.
func (s *Store) ListMintRecords(ctx context.Context, fundID string, limit int) ([]mint.MintRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT record_id, fund_id, ledger_sequence, minted_at, amount,
		       shares_minted, fund_value_at_mint, tx_hash, tx_fee_paid
		FROM feemint.mint_records
		WHERE fund_id = $1
		ORDER BY ledger_sequence DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, fundID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []mint.MintRecord
	for rows.Next() {
		var r mint.MintRecord
		var recordID string
		var seq int64
		if err := rows.Scan(&recordID, &r.FundID, &seq, &r.Timestamp, &r.Amount,
			&r.SharesMinted, &r.FundValueAtMint, &r.TxHash, &r.TxFeePaid); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(recordID)
		if err != nil {
			return nil, fmt.Errorf("parse record_id %q: %w", recordID, err)
		}
		r.RecordID = id
		r.LedgerSequence = uint64(seq)
		records = append(records, r)
	}
	return records, rows.Err()
}

// MintedInWindow sums minted amounts for a fund since the cutoff, for the
// operator API and the daily summary job.
func (s *Store) MintedInWindow(ctx context.Context, fundID string, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM feemint.mint_records
		WHERE fund_id = $1 AND minted_at >= $2
	`

	var total int64
	if err := s.db.QueryRowContext(ctx, query, fundID, since).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
