package tidectl

import (
	"time"

	"github.com/tidelineproject/tideline/internal/scaler/model"
)

type jobView struct {
	Id        string `yaml:"id"`
	Status    string `yaml:"status"`
	User      string `yaml:"user"`
	Namespace string `yaml:"namespace"`
	Stage     string `yaml:"stage"`
	Reaction  string `yaml:"reaction"`
	Created   string `yaml:"created"`
	Deadline  string `yaml:"deadline"`
	Resources string `yaml:"resources"`
	Worker    string `yaml:"worker,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

// GetJob prints one job.
func (a *App) GetJob(jobId string) error {
	return a.withRepositories(func(r *repositories) error {
		job, err := r.jobs.GetJob(jobId)
		if err != nil {
			return err
		}
		return a.printYaml(viewOfJob(job))
	})
}

func viewOfJob(job *model.Job) jobView {
	return jobView{
		Id:        job.Id,
		Status:    string(job.Status),
		User:      job.User,
		Namespace: job.Namespace(),
		Stage:     job.Stage,
		Reaction:  job.Reaction,
		Created:   job.Created.Format(time.RFC3339),
		Deadline:  job.Deadline.Format(time.RFC3339),
		Resources: job.Resources.String(),
		Worker:    job.Worker,
		Error:     job.Error,
	}
}
