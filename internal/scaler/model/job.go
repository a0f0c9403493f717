package model

import (
	"time"
)

type JobStatus string

const (
	JobCreated   JobStatus = "Created"
	JobRunning   JobStatus = "Running"
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
	JobErrored   JobStatus = "Errored"
	JobCancelled JobStatus = "Cancelled"
)

// Terminal reports whether a job in this status can never run again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobErrored, JobCancelled:
		return true
	}
	return false
}

// Job is one unit of work bound to a single pipeline stage. The scheduler
// owns it while queued; ownership moves to the claiming worker afterwards.
type Job struct {
	Id       string    `json:"id"`
	User     string    `json:"user"`
	Group    string    `json:"group"`
	Pipeline string    `json:"pipeline"`
	Stage    string    `json:"stage"`
	Reaction string    `json:"reaction"`
	Created  time.Time `json:"created"`

	// Sla is the explicit per job SLA in seconds, nil when the submitter
	// left it to the pipeline or system default.
	Sla *int64 `json:"sla,omitempty"`

	// Basis records the inputs the deadline was derived from, so the
	// deadline can be re-derived and audited later.
	Basis DeadlineBasis `json:"basis"`

	// Deadline is computed once at enqueue time and never recomputed,
	// keeping insertion O(1) at the cost of queued jobs holding estimates
	// that were current at submission.
	Deadline time.Time `json:"deadline"`

	Status    JobStatus `json:"status"`
	Resources Resources `json:"resources"`

	// Seq is the insertion sequence within the namespace, assigned at
	// enqueue. It breaks ties between equal deadlines.
	Seq uint64 `json:"seq"`

	Worker string `json:"worker,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (j *Job) Namespace() string {
	return Namespace(j.Group, j.Pipeline)
}

// Namespace is the partition a deadline stream is kept under.
func Namespace(group string, pipeline string) string {
	return group + ":" + pipeline
}

// DeadlineBasis captures what the deadline calculation saw at enqueue time.
// Explicit is true when the SLA came from the job or its pipeline; only
// jobs that fell through to the system default are bounded by the runtime
// estimate.
type DeadlineBasis struct {
	ResolvedSla   int64 `json:"resolvedSla"`
	EstimateBound int64 `json:"estimateBound"`
	Explicit      bool  `json:"explicit"`
}

// Deadline derives the deadline from the stored basis. Calling it again
// with the same inputs always yields the same instant.
func (b DeadlineBasis) Deadline(created time.Time) time.Time {
	seconds := b.ResolvedSla
	if !b.Explicit && b.EstimateBound < seconds {
		seconds = b.EstimateBound
	}
	return created.Add(time.Duration(seconds) * time.Second)
}

// JobRequest is what the submission API hands over for each job of a
// reaction.
type JobRequest struct {
	User      string
	Stage     string
	Resources Resources
	Sla       *int64
}
