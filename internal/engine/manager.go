package engine

import (
	"FeeMint/internal/event"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Manager fans ledger-close events out to every fund's Runner and collects
// the per-fund results. The ledger is shared; fee state is per fund.
type Manager struct {
	runners map[string]*Runner
	log     zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		runners: make(map[string]*Runner),
		log:     log,
	}
}

// Register adds a fund's runner. Must be called before Run.
func (m *Manager) Register(fundID string, r *Runner) error {
	if _, ok := m.runners[fundID]; ok {
		return fmt.Errorf("%w: duplicate fund id %q", event.ErrInvalidInput, fundID)
	}
	m.runners[fundID] = r
	return nil
}

// Runner returns the runner for a fund, if registered.
func (m *Manager) Runner(fundID string) (*Runner, bool) {
	r, ok := m.runners[fundID]
	return r, ok
}

// FundIDs lists the registered funds.
func (m *Manager) FundIDs() []string {
	ids := make([]string, 0, len(m.runners))
	for id := range m.runners {
		ids = append(ids, id)
	}
	return ids
}

// Run starts every runner and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	errCh := make(chan error, len(m.runners))
	for id, r := range m.runners {
		go func(id string, r *Runner) {
			err := r.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Str("fund", id).Msg("runner stopped")
			}
			errCh <- err
		}(id, r)
	}

	<-ctx.Done()
	for range m.runners {
		<-errCh
	}
	return ctx.Err()
}

// Dispatch hands one ledger-close event to every fund and waits for all of
// them. Funds process in parallel; within a fund the runner loop serializes.
// Returns a transient error if ANY fund deferred, so the caller NAKs and the
// event is redelivered — funds that already processed it reject the replay as
// a duplicate without state mutation.
func (m *Manager) Dispatch(ctx context.Context, evt *event.LedgerClose) error {
	done := make(chan error, len(m.runners))
	submitted := 0
	for _, r := range m.runners {
		if err := r.Submit(ctx, Task{Close: evt, Done: done}); err != nil {
			return err
		}
		submitted++
	}

	var deferred error
	for i := 0; i < submitted; i++ {
		select {
		case err := <-done:
			if err != nil && deferred == nil {
				deferred = err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return deferred
}

// ObserveFee fans a base-fee sample out to every fund (non-blocking).
func (m *Manager) ObserveFee(sample event.FeeSample) {
	for _, r := range m.runners {
		r.ObserveFee(sample)
	}
}
