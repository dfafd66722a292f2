// Package errs defines the sentinel error vocabulary shared across the
// risk core's layers.
package errs

import "errors"

var (
	// ErrStoreUnavailable is returned when the persistent store cannot
	// serve a read within its deadline and the cache also missed.
	ErrStoreUnavailable = errors.New("riskcore: store unavailable")

	// ErrCacheUnavailable is recovered internally by falling through to
	// the store; it is never returned to a caller.
	ErrCacheUnavailable = errors.New("riskcore: cache unavailable")

	// ErrTimeout is returned when the overall assessment deadline
	// elapses before a decision could be produced.
	ErrTimeout = errors.New("riskcore: assessment timeout")

	// ErrInvalidRequest is returned for malformed or out-of-bounds
	// assessment requests.
	ErrInvalidRequest = errors.New("riskcore: invalid request")

	// ErrAssessmentFailed is returned when the core could not produce a
	// response and the integrating boundary must fail closed.
	ErrAssessmentFailed = errors.New("riskcore: assessment failed")

	// ErrPayerNotFound indicates the referenced payer does not exist.
	ErrPayerNotFound = errors.New("riskcore: payer not found")

	// ErrTransactionNotFound indicates the referenced transaction does
	// not exist.
	ErrTransactionNotFound = errors.New("riskcore: transaction not found")
)
