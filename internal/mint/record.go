package mint

import (
	"time"

	"github.com/google/uuid"
)

// MintRecord is the append-only audit entry for one successful mint. A ledger
// sequence already present in the record log must never be minted twice.
type MintRecord struct {
	RecordID        uuid.UUID
	FundID          string
	LedgerSequence  uint64
	Timestamp       time.Time // Ledger close time of the triggering event
	Amount          int64     // Fee minted, value units
	SharesMinted    int64     // Share units issued, ShareConfig scale
	FundValueAtMint int64     // Value units
	TxHash          string
	TxFeePaid       int64 // Network fee paid, value units
}
