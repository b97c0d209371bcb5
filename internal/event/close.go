package event

import (
	"fmt"
	"time"
)

// LedgerClose is a discrete, sequence-numbered close point of the underlying
// ledger — the engine's sole trigger for action. Delivered at-least-once in
// non-decreasing sequence order; duplicates are rejected by the engine.
type LedgerClose struct {
	Sequence  uint64    // Ledger sequence number, strictly increasing
	CloseTime time.Time // Ledger close timestamp (versioned input, NOT wall-clock)
	BaseFee   int64     // Observed per-operation base fee in stroops (0 if not carried)
}

// IdempotencyKey returns the stable dedup key for this close event.
func (c *LedgerClose) IdempotencyKey() string {
	return fmt.Sprintf("close:%d", c.Sequence)
}

// FeeSample is a point observation of the network base fee, consumed by the
// congestion tracker. Never persisted beyond the rolling decision window.
type FeeSample struct {
	Timestamp       time.Time
	ObservedBaseFee int64 // Stroops per operation
}
