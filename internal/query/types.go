package query

import "time"

// FundStateResponse is the operator view of one fund's checkpointed state.
type FundStateResponse struct {
	FundID              string    `json:"fund_id"`
	AccruedUnminted     int64     `json:"accrued_unminted"`
	CarryForwardDeficit int64     `json:"carry_forward_deficit"`
	WindowSum           int64     `json:"window_sum"`
	LastLedgerSequence  uint64    `json:"last_ledger_sequence"`
	LastMintTime        time.Time `json:"last_mint_time"`
	LastAccrualTime     time.Time `json:"last_accrual_time"`
	SchedulerState      string    `json:"scheduler_state"`
}

// MintRecordResponse is one committed mint in API form.
type MintRecordResponse struct {
	RecordID        string    `json:"record_id"`
	FundID          string    `json:"fund_id"`
	LedgerSequence  uint64    `json:"ledger_sequence"`
	MintedAt        time.Time `json:"minted_at"`
	Amount          int64     `json:"amount"`
	SharesMinted    int64     `json:"shares_minted"`
	FundValueAtMint int64     `json:"fund_value_at_mint"`
	TxHash          string    `json:"tx_hash"`
	TxFeePaid       int64     `json:"tx_fee_paid"`
}

// FundSummaryResponse aggregates recent mint activity for one fund.
type FundSummaryResponse struct {
	FundID         string `json:"fund_id"`
	MintedLast24h  int64  `json:"minted_last_24h"`
	MintCountTotal int    `json:"mint_count_recent"`
}
