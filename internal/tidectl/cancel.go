package tidectl

import (
	"fmt"

	"github.com/pkg/errors"
)

// CancelJob cancels a queued job. A job a worker has already claimed is not
// touched; the worker owns it now.
func (a *App) CancelJob(jobId string) error {
	return a.withRepositories(func(r *repositories) error {
		if err := r.jobs.Cancel(jobId); err != nil {
			return errors.Wrapf(err, "error cancelling job %s", jobId)
		}
		fmt.Fprintf(a.Out, "Requested cancellation of job %s\n", jobId)
		return nil
	})
}
