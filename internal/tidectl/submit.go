package tidectl

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

// Submit enqueues one reaction of count identical jobs and prints the
// resulting ids and deadlines.
func (a *App) Submit(
	group string,
	pipeline string,
	user string,
	stage string,
	count int,
	resources model.Resources,
	sla *int64,
) error {
	if count < 1 {
		return errors.New("count must be at least 1")
	}
	return a.withRepositories(func(r *repositories) error {
		requests := make([]*model.JobRequest, 0, count)
		for i := 0; i < count; i++ {
			requests = append(requests, &model.JobRequest{
				User:      user,
				Stage:     stage,
				Resources: resources,
			})
		}

		jobs, err := r.jobs.EnqueueReactionJobs(group, pipeline, requests, sla)
		if err != nil {
			return errors.Wrap(err, "error submitting jobs")
		}
		for _, job := range jobs {
			fmt.Fprintf(a.Out, "Submitted job %s (deadline %s)\n", job.Id, job.Deadline.Format(time.RFC3339))
		}
		return nil
	})
}
