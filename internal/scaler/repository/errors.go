package repository

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned whenever a job a caller asked about is no longer
// present. Claims and cancellations racing each other produce it routinely,
// so callers treat it as benign rather than logging a failure.
type ErrNotFound struct {
	ResourceNames []string
}

func (err *ErrNotFound) Error() string {
	if len(err.ResourceNames) == 0 {
		return "could not find <UNKNOWN>"
	} else if len(err.ResourceNames) == 1 {
		return fmt.Sprintf("could not find %s", err.ResourceNames[0])
	}
	return fmt.Sprintf("could not find any of [%s]", strings.Join(err.ResourceNames, ", "))
}

// ErrDuplicateJob is returned by enqueue when the job id already exists in
// the namespace's deadline stream. It is surfaced to the caller and never
// retried internally.
type ErrDuplicateJob struct {
	JobId     string
	Namespace string
}

func (err *ErrDuplicateJob) Error() string {
	return fmt.Sprintf("job %q already exists in deadline stream %q", err.JobId, err.Namespace)
}

// ErrVersionMismatch is returned on claim when the agent's version is not
// compatible with the version the system settings require.
type ErrVersionMismatch struct {
	Required string
	Agent    string
}

func (err *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("agent version %q may not claim jobs, required version is %q", err.Agent, err.Required)
}

// ErrCorruptStream marks a deadline stream whose ordered structure can no
// longer be trusted, for example because a member fails to decode. Processing
// of the affected namespace must stop and the error surfaced, never dropped.
type ErrCorruptStream struct {
	Namespace string
	Member    string
	Cause     error
}

func (err *ErrCorruptStream) Error() string {
	return fmt.Sprintf("deadline stream %q is corrupt at member %q: %v", err.Namespace, err.Member, err.Cause)
}

func (err *ErrCorruptStream) Unwrap() error {
	return err.Cause
}

// ErrConfigInconsistency is produced by the consistency scan when persisted
// state violates the currently configured settings. It is flagged for admin
// review, never auto-corrected.
type ErrConfigInconsistency struct {
	Namespace string
	JobId     string
	Detail    string
}

func (err *ErrConfigInconsistency) Error() string {
	if err.JobId == "" {
		return fmt.Sprintf("namespace %q is inconsistent with current settings: %s", err.Namespace, err.Detail)
	}
	return fmt.Sprintf("job %q in namespace %q is inconsistent with current settings: %s", err.JobId, err.Namespace, err.Detail)
}
