package valuation

import (
	"context"
	"time"
)

// Static is a fixed-value Provider for tests and dry runs.
type Static struct {
	Value Valuation
	Err   error
	Calls int
}

func (s *Static) GetValuation(ctx context.Context, fundID string, asOf time.Time) (Valuation, error) {
	s.Calls++
	if s.Err != nil {
		return Valuation{}, s.Err
	}
	v := s.Value
	v.AsOf = asOf
	return v, nil
}
