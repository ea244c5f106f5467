package unlock

import (
	"errors"
	"time"

	"aum/internal/library"
	"aum/internal/services"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
)

// StateFor maps a job error to its terminal state.
func StateFor(err error) State {
	switch {
	case err == nil:
		return StateSucceeded
	case errors.Is(err, services.ErrTimeout):
		return StateTimedOut
	default:
		return StateFailed
	}
}

// Job is one attempt to unlock one file.
type Job struct {
	File       library.LockedFile
	ServiceURL string
	StartedAt  time.Time
	FinishedAt time.Time
	State      State
	Err        error
	Artifact   Artifact
	Target     string
}

// Reason returns a short description of why the job did not succeed.
func (j Job) Reason() string {
	return services.Reason(j.Err)
}

// Elapsed is the time the job took.
func (j Job) Elapsed() time.Duration {
	if j.FinishedAt.IsZero() {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

func (j *Job) finish(err error, now time.Time) {
	j.Err = err
	j.State = StateFor(err)
	j.FinishedAt = now
}

// Report is the outcome of a batch.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Jobs       []Job
}

// Counts returns the number of jobs per terminal state.
func (r Report) Counts() (succeeded, failed, timedOut int) {
	for _, job := range r.Jobs {
		switch job.State {
		case StateSucceeded:
			succeeded++
		case StateTimedOut:
			timedOut++
		default:
			failed++
		}
	}
	return succeeded, failed, timedOut
}

// Removals lists the originals that may be deleted because their
// replacement was placed in the music directory.
func (r Report) Removals() []library.Removal {
	var out []library.Removal
	for _, job := range r.Jobs {
		if job.State == StateSucceeded && job.Target != "" {
			out = append(out, library.Removal{Original: job.File, Target: job.Target})
		}
	}
	return out
}
