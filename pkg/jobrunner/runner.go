package jobrunner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gsingh-io/pgbackup/pkg/config"
	"github.com/gsingh-io/pgbackup/pkg/observability"
	"github.com/gsingh-io/pgbackup/pkg/secrets"
)

const (
	// submitTimeout bounds the submission call independently of the
	// job-completion deadline.
	submitTimeout = 30 * time.Second

	// logsTimeout bounds the best-effort log retrieval.
	logsTimeout = 30 * time.Second
)

// Runner supervises exactly one backup job per Run call: resolve, build,
// submit, wait, collect logs, classify, cleanup. Retrying a failed backup is
// the invoking engine's decision, never the runner's.
type Runner struct {
	client   Client
	resolver secrets.Resolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner returns a runner composing the given cluster client and
// credential resolver.
func NewRunner(client Client, resolver secrets.Resolver, logger *slog.Logger) *Runner {
	return &Runner{client: client, resolver: resolver, logger: logger}
}

// WithMetrics attaches a run metrics recorder. Returns the runner for chaining.
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Run executes one supervised backup run and returns its outcome.
//
// Configuration and credential failures abort before anything is created on
// the cluster and are returned as errors. A rejected submission returns a
// SubmissionError outcome with nothing to clean up. Every run that reaches
// the cluster releases the cleanup guard exactly once before returning,
// including on timeout and caller cancellation.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*Outcome, error) {
	started := time.Now().UTC()

	creds, err := r.resolver.Resolve(ctx, cfg.Job.Namespace, cfg.Secrets)
	if err != nil {
		return nil, err
	}

	job, err := BuildJob(cfg, creds)
	if err != nil {
		return nil, err
	}

	submitCtx, cancelSubmit := context.WithTimeout(ctx, submitTimeout)
	defer cancelSubmit()
	handle, err := r.client.Submit(submitCtx, job)
	if err != nil {
		r.logger.Error("job submission failed", "job", job.Name, "namespace", job.Namespace, "error", err)
		return r.finish(&Outcome{
			Class:     OutcomeSubmissionError,
			Reason:    err.Error(),
			StartedAt: started,
		}), nil
	}
	r.logger.Info("job submitted", "job", handle.Name, "namespace", handle.Namespace)

	guard := newCleanupGuard(r.client, handle, r.logger)
	defer guard.Release()

	waiter := NewWaiter(r.client, cfg.Job.PollInterval.Std(), cfg.Job.Timeout.Std())
	status, waitErr := waiter.Wait(ctx, handle)

	outcome := &Outcome{
		Name:      handle.Name,
		Namespace: handle.Namespace,
		StartedAt: started,
	}

	switch {
	case waitErr == nil:
		classify(outcome, status)
	case errors.Is(waitErr, ErrWaitTimeout):
		// The underlying pod may still be running; the guard deletes it below.
		outcome.Class = OutcomeTimedOut
		outcome.Reason = waitErr.Error()
	case errors.Is(waitErr, ErrJobVanished):
		outcome.Class = OutcomeSubmissionError
		outcome.Reason = waitErr.Error()
	default:
		// Caller cancellation or an unrecoverable status error: clean up,
		// then unwind with the error.
		guard.Release()
		return nil, waitErr
	}

	// Capture logs before deletion so diagnostics survive cleanup.
	outcome.Logs = r.collectLogs(ctx, handle)

	outcome.CleanupWarning = guard.Release()

	r.logger.Info("run finished",
		"job", handle.Name,
		"namespace", handle.Namespace,
		"outcome", string(outcome.Class),
		"exitCode", outcome.ExitCode)
	return r.finish(outcome), nil
}

// classify maps a terminal status onto the outcome. A Failed phase carrying
// exit code zero means the cluster report and the container disagree; that
// stays a failure.
func classify(outcome *Outcome, status Status) {
	switch status.Phase {
	case PhaseSucceeded:
		outcome.Class = OutcomeSucceeded
		outcome.Reason = status.Reason
	case PhaseFailed:
		outcome.Class = OutcomeFailed
		outcome.ExitCode = status.ExitCode
		outcome.Reason = status.Reason
		if status.ExitCode == 0 {
			outcome.Reason = "inconsistent status"
		}
	}
}

// collectLogs fetches pod logs best-effort; a missing log stream never
// changes the run classification.
func (r *Runner) collectLogs(ctx context.Context, handle Handle) string {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	logsCtx, cancel := context.WithTimeout(ctx, logsTimeout)
	defer cancel()

	logs, err := r.client.Logs(logsCtx, handle)
	if err != nil {
		r.logger.Warn("log retrieval failed", "job", handle.Name, "namespace", handle.Namespace, "error", err)
	}
	return logs
}

func (r *Runner) finish(outcome *Outcome) *Outcome {
	outcome.FinishedAt = time.Now().UTC()
	if r.metrics != nil {
		r.metrics.ObserveRun(string(outcome.Class), outcome.FinishedAt.Sub(outcome.StartedAt))
	}
	return outcome
}
