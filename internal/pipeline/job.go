package pipeline

import (
	"time"
)

// State is the lifecycle position of a job. States only move forward.
type State int

const (
	StateSubmitting State = iota
	StatePolling
	StateDownloading
	StateUploading
	StateSucceeded
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateSubmitting:  "submitting",
	StatePolling:     "polling",
	StateDownloading: "downloading",
	StateUploading:   "uploading",
	StateSucceeded:   "succeeded",
	StateFailed:      "failed",
	StateCancelled:   "cancelled",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the state ends the job.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// Snapshot is a read-only copy of a job's externally visible fields.
type Snapshot struct {
	ID              string
	Identity        string
	State           State
	Prompt          string
	AspectRatio     AspectRatio
	DurationSeconds int
	StartedAt       time.Time
	UpdatedAt       time.Time
	CancelRequested bool

	// Set once the job is terminal.
	Err        error
	ResultURI  string
	AssetBytes int64
}

// Outcome is the terminal result of a job.
type Outcome struct {
	State      State
	Err        error
	ResultURI  string
	AssetBytes int64
	FinishedAt time.Time
}

// JobHandle is returned by StartJob for callers that want to wait on a job.
type JobHandle struct {
	ID string
	j  *job
}

// Done is closed once the job has reached a terminal state and the slot has
// been released.
func (h *JobHandle) Done() <-chan struct{} {
	return h.j.done
}

// Outcome returns the terminal result. ok is false while the job is running.
func (h *JobHandle) Outcome() (Outcome, bool) {
	select {
	case <-h.j.done:
		return h.j.outcome, true
	default:
		return Outcome{}, false
	}
}

type job struct {
	id        string
	identity  string
	req       Request
	dest      Destination
	token     *Token
	startedAt time.Time

	// Guarded by Orchestrator.mu.
	state     State
	updatedAt time.Time

	// Written once before done is closed.
	outcome Outcome
	done    chan struct{}
}

func (j *job) snapshot() Snapshot {
	s := Snapshot{
		ID:              j.id,
		Identity:        j.identity,
		State:           j.state,
		Prompt:          j.req.Prompt,
		AspectRatio:     j.req.AspectRatio,
		DurationSeconds: j.req.DurationSeconds,
		StartedAt:       j.startedAt,
		UpdatedAt:       j.updatedAt,
		CancelRequested: j.token.Requested(),
	}
	if j.state.Terminal() {
		s.Err = j.outcome.Err
		s.ResultURI = j.outcome.ResultURI
		s.AssetBytes = j.outcome.AssetBytes
	}
	return s
}
