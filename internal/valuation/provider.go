package valuation

import (
	"context"
	"time"
)

// Valuation is a point-in-time view of the fund, as delivered by the external
// valuation/share-registry service. FundValue carries ValueConfig scale,
// SharesOutstanding carries ShareConfig scale.
type Valuation struct {
	FundValue         int64
	SharesOutstanding int64
	AsOf              time.Time
}

// Provider fetches the current fund value and outstanding shares as of a
// requested timestamp. Implementations must honor ctx deadlines; a fetch
// failure is transient and defers the triggering ledger-close event.
type Provider interface {
	GetValuation(ctx context.Context, fundID string, asOf time.Time) (Valuation, error)
}
