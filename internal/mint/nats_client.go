package mint

import (
	"FeeMint/internal/event"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSLedgerClient submits mint transactions via NATS request-reply. The
// ledger gateway listens on the configured subject and answers with a JSON
// submitResponse after the transaction is accepted or rejected.
type NATSLedgerClient struct {
	nc      *nats.Conn
	subject string
}

type submitRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Shares      int64  `json:"shares"`
	Memo        uint64 `json:"memo"`
}

type submitResponse struct {
	Status  string `json:"status"` // "accepted" or "rejected"
	Reason  string `json:"reason,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
	FeePaid int64  `json:"fee_paid,omitempty"`
}

func NewNATSLedgerClient(nc *nats.Conn, subject string) *NATSLedgerClient {
	if subject == "" {
		subject = "ledger.submit.mint"
	}
	return &NATSLedgerClient{nc: nc, subject: subject}
}

// SubmitMint sends the transaction and waits for the gateway's verdict.
// Transport failures and timeouts return plain errors (the submitter wraps
// them as transient); an explicit rejection returns SubmissionRejectedError.
func (c *NATSLedgerClient) SubmitMint(ctx context.Context, destination string, amount, shares int64, memo uint64) (SubmitResult, error) {
	payload, err := json.Marshal(submitRequest{
		Destination: destination,
		Amount:      amount,
		Shares:      shares,
		Memo:        memo,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("marshal submit request: %w", err)
	}

	msg, err := c.nc.RequestWithContext(ctx, c.subject, payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("submit request: %w", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("decode submit response: %w", err)
	}

	if resp.Status == "rejected" {
		return SubmitResult{}, &event.SubmissionRejectedError{
			LedgerSequence: memo,
			Reason:         resp.Reason,
		}
	}
	if resp.TxHash == "" {
		return SubmitResult{}, fmt.Errorf("submit response missing tx_hash")
	}

	return SubmitResult{TxHash: resp.TxHash, FeePaid: resp.FeePaid}, nil
}
