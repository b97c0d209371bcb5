package ingestion

import (
	"FeeMint/internal/mint"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Outbound subject layout: feemint.mints.{fund_id}
const (
	StreamMintEvents  = "FEEMINT_MINTS"
	subjectMintPrefix = "feemint.mints"
)

// mintNoticeJSON is the outbound wire format for a committed mint.
type mintNoticeJSON struct {
	RecordID        string `json:"record_id"`
	FundID          string `json:"fund_id"`
	LedgerSequence  uint64 `json:"ledger_sequence"`
	MintedAtUs      int64  `json:"minted_at_us"`
	Amount          int64  `json:"amount"`
	SharesMinted    int64  `json:"shares_minted"`
	FundValueAtMint int64  `json:"fund_value_at_mint"`
	TxHash          string `json:"tx_hash"`
	TxFeePaid       int64  `json:"tx_fee_paid"`
}

// MintPublisher announces committed mints to downstream consumers. Records
// arrive only after their checkpoint transaction has committed, so consumers
// never see a mint the database can lose.
type MintPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan mint.MintRecord
	log       zerolog.Logger
}

func NewMintPublisher(js jetstream.JetStream, inputChan <-chan mint.MintRecord, log zerolog.Logger) *MintPublisher {
	return &MintPublisher{
		js:        js,
		inputChan: inputChan,
		log:       log.With().Str("component", "mint_publisher").Logger(),
	}
}

// Run publishes until ctx is cancelled or the channel closes. Publish
// failures are non-fatal: the mint record log remains queryable over HTTP.
func (mp *MintPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-mp.inputChan:
			if !ok {
				return nil
			}
			if err := mp.publish(ctx, rec); err != nil {
				mp.log.Warn().
					Err(err).
					Str("fund_id", rec.FundID).
					Uint64("ledger_sequence", rec.LedgerSequence).
					Msg("mint publish failed")
			}
		}
	}
}

func (mp *MintPublisher) publish(ctx context.Context, rec mint.MintRecord) error {
	data, err := json.Marshal(mintNoticeJSON{
		RecordID:        rec.RecordID.String(),
		FundID:          rec.FundID,
		LedgerSequence:  rec.LedgerSequence,
		MintedAtUs:      rec.Timestamp.UnixMicro(),
		Amount:          rec.Amount,
		SharesMinted:    rec.SharesMinted,
		FundValueAtMint: rec.FundValueAtMint,
		TxHash:          rec.TxHash,
		TxFeePaid:       rec.TxFeePaid,
	})
	if err != nil {
		return fmt.Errorf("marshal mint notice: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", subjectMintPrefix, rec.FundID)
	_, err = mp.js.Publish(ctx, subject, data)
	return err
}

// EnsureMintStream creates the outbound mint events stream.
func EnsureMintStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamMintEvents,
		Subjects:  []string{subjectMintPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamMintEvents, err)
	}
	log.Info().Str("stream", StreamMintEvents).Msg("ensured stream")
	return nil
}
