package query

import (
	"FeeMint/internal/persistence"
	"context"
	"fmt"
	"time"
)

// QueryService serves read-only state for the operator HTTP API. It reads
// checkpointed state from Postgres rather than touching the live engines, so
// responses lag processing by at most one checkpoint flush.
type QueryService struct {
	store *persistence.Store
}

func NewQueryService(store *persistence.Store) *QueryService {
	return &QueryService{store: store}
}

// ErrFundNotFound is returned when no checkpoint exists for a fund.
var ErrFundNotFound = fmt.Errorf("fund not found")

// GetFundState returns the latest checkpointed state for a fund.
func (qs *QueryService) GetFundState(ctx context.Context, fundID string) (*FundStateResponse, error) {
	st, ok, err := qs.store.LoadFeeState(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrFundNotFound
	}

	var windowSum int64
	for _, e := range st.DailyWindow {
		windowSum += e.Amount
	}

	return &FundStateResponse{
		FundID:              st.FundID,
		AccruedUnminted:     st.AccruedUnminted,
		CarryForwardDeficit: st.CarryForwardDeficit,
		WindowSum:           windowSum,
		LastLedgerSequence:  st.LastLedgerSequence,
		LastMintTime:        st.LastMintTime,
		LastAccrualTime:     st.LastAccrualTime,
		SchedulerState:      st.SchedulerState.String(),
	}, nil
}

// ListMints returns the newest mint records for a fund.
func (qs *QueryService) ListMints(ctx context.Context, fundID string, limit int) ([]MintRecordResponse, error) {
	records, err := qs.store.ListMintRecords(ctx, fundID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]MintRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, MintRecordResponse{
			RecordID:        r.RecordID.String(),
			FundID:          r.FundID,
			LedgerSequence:  r.LedgerSequence,
			MintedAt:        r.Timestamp,
			Amount:          r.Amount,
			SharesMinted:    r.SharesMinted,
			FundValueAtMint: r.FundValueAtMint,
			TxHash:          r.TxHash,
			TxFeePaid:       r.TxFeePaid,
		})
	}
	return out, nil
}

// GetFundSummary aggregates the trailing-24h mint activity for a fund.
func (qs *QueryService) GetFundSummary(ctx context.Context, fundID string, now time.Time) (*FundSummaryResponse, error) {
	if _, ok, err := qs.store.LoadFeeState(ctx, fundID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrFundNotFound
	}

	minted, err := qs.store.MintedInWindow(ctx, fundID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	records, err := qs.store.ListMintRecords(ctx, fundID, 100)
	if err != nil {
		return nil, err
	}

	return &FundSummaryResponse{
		FundID:         fundID,
		MintedLast24h:  minted,
		MintCountTotal: len(records),
	}, nil
}
