// Package fault defines the error taxonomy shared across the device runtime.
// Errors are classified with errors.Is against the sentinels below; callers
// wrap them with fmt.Errorf("...: %w", ...) to add context.
package fault

import "errors"

var (
	// ErrInvalidState marks an operation attempted outside its valid lifecycle,
	// e.g. starting a pipeline that was never initialized.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument marks nil, zero-length, or out-of-range inputs.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTimeout marks an exceeded lock, queue, or drain wait. It is always
	// distinguishable from other failures so callers can decide between
	// retrying and escalating.
	ErrTimeout = errors.New("timeout")

	// ErrResourceExhausted marks a full buffer or failed allocation.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrParse marks a malformed audio stream (e.g. no RIFF signature within
	// the staging window).
	ErrParse = errors.New("parse error")

	// ErrHardware marks a driver-reported failure.
	ErrHardware = errors.New("hardware fault")

	// ErrInterrupted marks a blocking buffer wait that was force-unblocked by
	// a pipeline stop. It is not part of the user-visible taxonomy but keeps
	// forced teardown distinguishable from timeouts.
	ErrInterrupted = errors.New("interrupted")
)

// IsTimeout reports whether err is (or wraps) ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
