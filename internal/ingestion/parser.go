package ingestion

import (
	"FeeMint/internal/event"
	"encoding/json"
	"fmt"
	"time"
)

// --- JSON wire formats ---
// Field names use snake_case to match the upstream ledger feed.

type ledgerCloseJSON struct {
	Sequence    uint64 `json:"sequence"`
	CloseTimeUs int64  `json:"close_time_us"`
	BaseFee     int64  `json:"base_fee"`
}

// ParseLedgerClose decodes a ledger close notification from the ledger feed.
func ParseLedgerClose(data []byte) (event.LedgerClose, error) {
	var j ledgerCloseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.LedgerClose{}, fmt.Errorf("parse LedgerClose: %w", err)
	}
	if j.Sequence == 0 {
		return event.LedgerClose{}, fmt.Errorf("parse LedgerClose: sequence must be positive")
	}
	if j.CloseTimeUs <= 0 {
		return event.LedgerClose{}, fmt.Errorf("parse LedgerClose: close_time_us must be positive")
	}
	return event.LedgerClose{
		Sequence:  j.Sequence,
		CloseTime: time.UnixMicro(j.CloseTimeUs),
		BaseFee:   j.BaseFee,
	}, nil
}

type feeSampleJSON struct {
	TimestampUs int64 `json:"timestamp_us"`
	BaseFee     int64 `json:"base_fee"`
}

// ParseFeeSample decodes a standalone base-fee observation.
func ParseFeeSample(data []byte) (event.FeeSample, error) {
	var j feeSampleJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return event.FeeSample{}, fmt.Errorf("parse FeeSample: %w", err)
	}
	if j.TimestampUs <= 0 {
		return event.FeeSample{}, fmt.Errorf("parse FeeSample: timestamp_us must be positive")
	}
	return event.FeeSample{
		Timestamp:       time.UnixMicro(j.TimestampUs),
		ObservedBaseFee: j.BaseFee,
	}, nil
}
