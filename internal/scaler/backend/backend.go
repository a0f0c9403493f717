package backend

import (
	"fmt"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

// Backend turns admitted jobs into running workers.
type Backend interface {
	Name() string

	// Spawn starts a worker for the job. Calls must be time bounded; a
	// timeout surfaces as a TransientError and the job stays queued.
	Spawn(job *model.Job, spec model.ImageSpec) (*model.WorkerHandle, error)
}

// TransientError is a dispatch failure expected to clear on its own, such as
// a resource shortfall or a timed out call. The job stays queued and is
// retried next loop.
type TransientError struct {
	Reason string
	Cause  error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient dispatch failure: %s: %s", e.Reason, e.Cause)
	}
	return fmt.Sprintf("transient dispatch failure: %s", e.Reason)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError is a dispatch the backend can never satisfy, for example a pod
// spec the cluster rejects as invalid. The job is errored, not retried.
type FatalError struct {
	Reason string
	Cause  error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal dispatch failure: %s: %s", e.Reason, e.Cause)
	}
	return fmt.Sprintf("fatal dispatch failure: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Cause }

// ErrAlreadySpawned reports a second spawn for a job that already has a
// worker. Callers treat it as success.
type ErrAlreadySpawned struct {
	JobId string
}

func (e *ErrAlreadySpawned) Error() string {
	return fmt.Sprintf("job %s already has a worker", e.JobId)
}
