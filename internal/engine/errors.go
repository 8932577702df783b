// Package engine implements the scheduler core: session coordination,
// cleanup, snapshot loading, weekly/monthly expansion, finalization, retry,
// and the single-template lean path, tied together by a run orchestrator.
package engine

import (
	"errors"
	"fmt"
)

// RetryableError marks an error as a transient storage fault eligible for
// the retry handler (§4.8). Individual components never implement their own
// retry; they wrap the error they got and let the handler decide.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Err) }
func (e *RetryableError) Unwrap() error { return e.Err }

// Transient wraps err as a RetryableError, or returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// PanicError converts a recovered panic into a typed, inspectable error.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic during run: %v", e.Value) }

// IsPanic reports whether err is a PanicError.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// CancelledError marks a cooperative cancellation (§7's Cancellation kind).
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string { return fmt.Sprintf("run cancelled: %s", e.Reason) }

// IsCancelled reports whether err is a CancelledError.
func IsCancelled(err error) bool {
	var ce *CancelledError
	return errors.As(err, &ce)
}

// ValidationError marks a candidate-level problem (unknown template, a
// monthly template with no weekday flag, etc). It is recorded as an audit
// row with outcome Error; the run continues.
type ValidationError struct {
	TemplateID int64
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: template %d: %s", e.TemplateID, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrBlocked marks a failed session acquisition (§7's Contention kind):
// begin returned blocked, no mutation happened.
var ErrBlocked = errors.New("engine: session already held")
