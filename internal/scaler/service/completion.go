package service

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

// CompletionService is the worker facing end of a job's life: it records the
// terminal status and feeds the measured execution time into the image's
// runtime estimate, which future deadline calculations consult.
type CompletionService struct {
	jobs      repository.JobRepository
	estimator *Estimator
}

func NewCompletionService(jobs repository.JobRepository, estimator *Estimator) *CompletionService {
	return &CompletionService{
		jobs:      jobs,
		estimator: estimator,
	}
}

// Complete marks the job terminal and, for successful runs, records how long
// it ran. ranFor is measured by the worker; zero means the worker could not
// tell, and failed runs never feed the estimate because their durations say
// nothing about how long the work takes.
func (s *CompletionService) Complete(jobId string, status model.JobStatus, message string, ranFor time.Duration) (*model.Job, error) {
	job, err := s.jobs.ReportDone(jobId, status, message)
	if err != nil {
		return nil, err
	}

	if status == model.JobCompleted && ranFor > 0 {
		// The job is already done; losing one sample only delays the
		// estimate, so a failure here must not fail the completion.
		if err := s.estimator.RecordCompletion(job.Stage, ranFor); err != nil {
			log.WithError(err).Warnf("Failed to record runtime sample for image %s", job.Stage)
		}
	}
	return job, nil
}
