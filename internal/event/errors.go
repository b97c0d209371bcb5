package event

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the engine. Propagation policy: no error path
// drops accrued fee; everything except a rejection is retried on the next
// ledger-close event.
var (
	// ErrInvalidInput covers malformed configuration and negative amounts.
	// Fatal at startup, recoverable-by-correction on config reload.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateEvent marks an out-of-order or already-processed ledger
	// sequence. Logged and ignored, never propagated as a failure.
	ErrDuplicateEvent = errors.New("duplicate or out-of-order event")
)

// TransientIOError wraps a valuation fetch or submission network
// failure/timeout. Recovered locally by deferring to the next event.
type TransientIOError struct {
	Op  string // "valuation" or "submit"
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// IsTransient reports whether err is (or wraps) a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// SubmissionRejectedError marks a non-transient ledger rejection (malformed
// transaction, insufficient authorization). Accrual is preserved; the engine
// keeps attempting while an operator intervenes.
type SubmissionRejectedError struct {
	LedgerSequence uint64
	Reason         string
}

func (e *SubmissionRejectedError) Error() string {
	return fmt.Sprintf("mint rejected at ledger %d: %s", e.LedgerSequence, e.Reason)
}

// IsRejected reports whether err is (or wraps) a SubmissionRejectedError.
func IsRejected(err error) bool {
	var r *SubmissionRejectedError
	return errors.As(err, &r)
}
