package jobrunner

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ErrWaitTimeout marks a job that did not reach a terminal state within the
// configured deadline. The job is still deleted; its true outcome is unknown.
var ErrWaitTimeout = errors.New("job did not reach a terminal state before the deadline")

// minPollInterval is the floor for the status poll interval.
const minPollInterval = time.Second

// Waiter polls a submitted job until it reaches a terminal state, the
// deadline elapses or the caller cancels.
type Waiter struct {
	client   Client
	interval time.Duration
	timeout  time.Duration
}

// NewWaiter returns a waiter polling on the given interval under the given
// deadline. Intervals below one second are raised to the floor.
func NewWaiter(client Client, interval, timeout time.Duration) *Waiter {
	if interval < minPollInterval {
		interval = minPollInterval
	}
	return &Waiter{client: client, interval: interval, timeout: timeout}
}

// Wait blocks until a terminal status is observed and returns it. On the
// deadline it returns ErrWaitTimeout, on an externally deleted job
// ErrJobVanished, and on caller cancellation the context error. Transient
// status errors are absorbed by the next poll.
func (w *Waiter) Wait(ctx context.Context, handle Handle) (Status, error) {
	var last Status
	err := wait.PollUntilContextTimeout(ctx, w.interval, w.timeout, true, func(ctx context.Context) (bool, error) {
		status, err := w.client.Status(ctx, handle)
		if err != nil {
			if retriable(err) {
				return false, nil
			}
			return false, err
		}

		last = status
		switch status.Phase {
		case PhaseSucceeded, PhaseFailed:
			return true, nil
		case PhaseNotFound:
			return false, ErrJobVanished
		default:
			return false, nil
		}
	})

	if err != nil {
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		if wait.Interrupted(err) {
			return Status{}, ErrWaitTimeout
		}
		return Status{}, err
	}
	return last, nil
}
