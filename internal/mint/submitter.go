package mint

import (
	"FeeMint/internal/accrual"
	"FeeMint/internal/event"
	"FeeMint/internal/valuation"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SubmitResult is what the ledger client reports for a committed mint.
type SubmitResult struct {
	TxHash  string
	FeePaid int64 // Network transaction fee, value units
}

// LedgerClient submits signed mint transactions to the ledger network.
// Implementations return *event.SubmissionRejectedError for non-transient
// rejections; any other error is treated as transient and retried on the
// next ledger-close event.
type LedgerClient interface {
	SubmitMint(ctx context.Context, destination string, amount, shares int64, memo uint64) (SubmitResult, error)
}

// Outcome describes a Submit call that did not fail.
type Outcome struct {
	Record        *MintRecord
	AlreadyMinted bool
}

// Submitter builds and submits mint transactions idempotently. Before
// submitting it consults the record log: a prior attempt may have succeeded
// while the confirmation was lost, and resubmitting would double-mint.
type Submitter struct {
	fundID      string
	destination string
	client      LedgerClient
	records     *RecordLog
	timeout     time.Duration
	log         zerolog.Logger
}

func NewSubmitter(fundID, destination string, client LedgerClient, records *RecordLog, timeout time.Duration, log zerolog.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Submitter{
		fundID:      fundID,
		destination: destination,
		client:      client,
		records:     records,
		timeout:     timeout,
		log:         log,
	}
}

// Submit mints amount (value units) against ledgerSequence. The fee is issued
// as new fund shares at the point-in-time share price from val.
func (s *Submitter) Submit(ctx context.Context, ledgerSequence uint64, amount int64, val valuation.Valuation, closeTime time.Time) (Outcome, error) {
	if amount <= 0 {
		return Outcome{}, fmt.Errorf("%w: mint amount must be positive, got %d", event.ErrInvalidInput, amount)
	}

	minted, err := s.records.Has(ctx, ledgerSequence)
	if err != nil {
		return Outcome{}, err
	}
	if minted {
		s.log.Info().
			Uint64("ledger_sequence", ledgerSequence).
			Msg("ledger sequence already minted, treating as committed")
		return Outcome{AlreadyMinted: true}, nil
	}

	shares := accrual.ConvertToShares(amount, val.FundValue, val.SharesOutstanding)

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.SubmitMint(submitCtx, s.destination, amount, shares, ledgerSequence)
	if err != nil {
		if event.IsRejected(err) {
			return Outcome{}, err
		}
		return Outcome{}, &event.TransientIOError{Op: "submit", Err: err}
	}

	s.records.MarkMinted(ledgerSequence)

	record := &MintRecord{
		RecordID:        uuid.New(),
		FundID:          s.fundID,
		LedgerSequence:  ledgerSequence,
		Timestamp:       closeTime,
		Amount:          amount,
		SharesMinted:    shares,
		FundValueAtMint: val.FundValue,
		TxHash:          result.TxHash,
		TxFeePaid:       result.FeePaid,
	}

	s.log.Info().
		Uint64("ledger_sequence", ledgerSequence).
		Int64("amount", amount).
		Int64("shares", shares).
		Str("tx_hash", result.TxHash).
		Msg("mint committed")

	return Outcome{Record: record}, nil
}
