// Package jobrunner submits a single backup Job to a Kubernetes cluster,
// supervises it to a terminal state and guarantees cleanup on every exit path.
package jobrunner

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	// ErrInvalidConfiguration marks malformed input caught before any
	// cluster call. Never retryable.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSubmission marks a job rejected by the cluster for a permanent
	// reason (authorization, quota, malformed manifest).
	ErrSubmission = errors.New("submission rejected")

	// ErrTransientSubmission marks an API-server connectivity failure
	// during submission. Retryable with bounded attempts.
	ErrTransientSubmission = errors.New("submission failed transiently")

	// ErrJobVanished marks a submitted job that disappeared before
	// reaching a terminal state.
	ErrJobVanished = errors.New("job vanished before completion")
)

// Error carries the failing operation and underlying cause alongside the
// sentinel used for classification.
type Error struct {
	Sentinel error
	Message  string
	Op       string
	Cause    error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// InvalidConfiguration creates a configuration validation error.
func InvalidConfiguration(field, message string) error {
	return &Error{
		Sentinel: ErrInvalidConfiguration,
		Message:  fmt.Sprintf("%s: %s", field, message),
		Op:       field,
	}
}

// Submission wraps a permanent submission rejection.
func Submission(op string, cause error) error {
	return &Error{
		Sentinel: ErrSubmission,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// TransientSubmission wraps a retryable submission failure.
func TransientSubmission(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransientSubmission,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
