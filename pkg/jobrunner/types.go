package jobrunner

import "time"

// Handle identifies one submitted job instance. It is owned by the runner
// for the duration of a run and released before the run returns.
type Handle struct {
	// Name of the Kubernetes job.
	Name string `json:"name"`

	// Namespace of the Kubernetes job.
	Namespace string `json:"namespace"`

	// SubmittedAt records when the job was accepted by the cluster.
	SubmittedAt time.Time `json:"submittedAt"`
}

// Phase is the observed state of a submitted job.
type Phase string

const (
	PhasePending   Phase = "Pending"
	PhaseRunning   Phase = "Running"
	PhaseSucceeded Phase = "Succeeded"
	PhaseFailed    Phase = "Failed"
	PhaseNotFound  Phase = "NotFound"
)

// Terminal reports whether no further phase transition can occur.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Status describes one observation of a submitted job.
type Status struct {
	// Phase is the coarse job state derived from the job conditions.
	Phase Phase `json:"phase"`

	// ExitCode is the backup container's exit code, set once the pod
	// container has terminated.
	// +optional
	ExitCode int32 `json:"exitCode,omitempty"`

	// Reason is a human readable message indicating why the job is in
	// this phase.
	// +optional
	Reason string `json:"reason,omitempty"`
}

// OutcomeClass is the terminal classification of one run.
type OutcomeClass string

const (
	// OutcomeSucceeded means the backup container exited 0.
	OutcomeSucceeded OutcomeClass = "Succeeded"

	// OutcomeFailed means the container ran and reported failure.
	OutcomeFailed OutcomeClass = "Failed"

	// OutcomeTimedOut means no terminal state was observed within the
	// deadline; the job was deleted and its true result is unknown.
	OutcomeTimedOut OutcomeClass = "TimedOut"

	// OutcomeSubmissionError means the cluster never ran the job.
	OutcomeSubmissionError OutcomeClass = "SubmissionError"
)

// Outcome describes the result of one supervised backup run.
type Outcome struct {
	// Class is the terminal classification of the run.
	Class OutcomeClass `json:"class"`

	// Name of the Kubernetes job, empty when submission failed.
	// +optional
	Name string `json:"name,omitempty"`

	// Namespace of the Kubernetes job.
	// +optional
	Namespace string `json:"namespace,omitempty"`

	// ExitCode is the container exit code for a Failed run.
	// +optional
	ExitCode int32 `json:"exitCode,omitempty"`

	// Reason is a human readable message indicating details about the
	// run result.
	// +optional
	Reason string `json:"reason,omitempty"`

	// Logs holds the pod logs collected before cleanup, best-effort.
	// +optional
	Logs string `json:"logs,omitempty"`

	// CleanupWarning reports a failed job deletion. It never changes the
	// run classification and is surfaced for manual remediation.
	// +optional
	CleanupWarning string `json:"cleanupWarning,omitempty"`

	// StartedAt records when the run began.
	StartedAt time.Time `json:"startedAt"`

	// FinishedAt records when the run returned.
	FinishedAt time.Time `json:"finishedAt"`
}
