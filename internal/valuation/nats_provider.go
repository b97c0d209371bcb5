package valuation

import (
	"FeeMint/internal/event"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSProvider fetches valuations via NATS request-reply. The valuation
// service listens on fund.valuation.{fund_id} and answers with a JSON
// valuationResponse.
type NATSProvider struct {
	nc      *nats.Conn
	timeout time.Duration
}

type valuationRequest struct {
	FundID string `json:"fund_id"`
	AsOfUs int64  `json:"as_of_us"`
}

type valuationResponse struct {
	FundValue         int64 `json:"fund_value"`
	SharesOutstanding int64 `json:"shares_outstanding"`
	AsOfUs            int64 `json:"as_of_us"`
}

func NewNATSProvider(nc *nats.Conn, timeout time.Duration) *NATSProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &NATSProvider{nc: nc, timeout: timeout}
}

// GetValuation requests the fund value as of the given timestamp. Timeouts
// and transport failures surface as TransientIOError so the engine defers
// the event instead of losing accrual.
func (p *NATSProvider) GetValuation(ctx context.Context, fundID string, asOf time.Time) (Valuation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(valuationRequest{FundID: fundID, AsOfUs: asOf.UnixMicro()})
	if err != nil {
		return Valuation{}, fmt.Errorf("marshal valuation request: %w", err)
	}

	subject := fmt.Sprintf("fund.valuation.%s", fundID)
	msg, err := p.nc.RequestWithContext(reqCtx, subject, payload)
	if err != nil {
		return Valuation{}, &event.TransientIOError{Op: "valuation", Err: err}
	}

	var resp valuationResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return Valuation{}, &event.TransientIOError{Op: "valuation", Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.FundValue < 0 || resp.SharesOutstanding < 0 {
		return Valuation{}, fmt.Errorf("%w: negative valuation for fund %s", event.ErrInvalidInput, fundID)
	}

	return Valuation{
		FundValue:         resp.FundValue,
		SharesOutstanding: resp.SharesOutstanding,
		AsOf:              time.UnixMicro(resp.AsOfUs),
	}, nil
}
