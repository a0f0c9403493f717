package repository

import (
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tidelineproject/tideline/internal/common/util"
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

const (
	jobObjectPrefix = "Job:"
	claimPrefix     = "Claim:"
)

// maxClaimAttempts bounds how many contended or dangling entries one claim
// call will step over before reporting the queue empty.
const maxClaimAttempts = 10

func jobObjectKey(jobId string) string {
	return jobObjectPrefix + jobId
}

func claimCreatedKey(stage string) string {
	return claimPrefix + stage + ":Created"
}

func claimRunningKey(stage string) string {
	return claimPrefix + stage + ":Running"
}

// DeadlineCalculator resolves the layered SLA policy into the basis a job's
// deadline is derived from.
type DeadlineCalculator interface {
	Basis(group string, pipeline string, stage string, explicitSla *int64) (model.DeadlineBasis, error)
}

type JobRepository interface {
	EnqueueReactionJobs(group string, pipeline string, requests []*model.JobRequest, reactionSla *int64) ([]*model.Job, error)
	GetJob(jobId string) (*model.Job, error)
	GetJobsByIds(jobIds []string) ([]*model.Job, error)
	ClaimNext(stage string, worker string, agentVersion string) (*model.Job, error)
	Cancel(jobId string) error
	MarkErrored(jobId string, message string) error
	ReportDone(jobId string, status model.JobStatus, message string) (*model.Job, error)
}

type RedisJobRepository struct {
	db         redis.UniversalClient
	streams    DeadlineStreamRepository
	calculator DeadlineCalculator
	settings   SettingsRepository
	clock      util.Clock
}

func NewRedisJobRepository(
	db redis.UniversalClient,
	streams DeadlineStreamRepository,
	calculator DeadlineCalculator,
	settings SettingsRepository,
) *RedisJobRepository {
	return &RedisJobRepository{
		db:         db,
		streams:    streams,
		calculator: calculator,
		settings:   settings,
		clock:      &util.UTCClock{},
	}
}

// EnqueueReactionJobs creates one job per request under the given group and
// pipeline, computes each deadline once and enqueues the jobs into the
// namespace's deadline stream. A job level SLA beats the reaction level one.
// Returns the jobs that made it into the stream; on error the remainder was
// not written.
func (repo *RedisJobRepository) EnqueueReactionJobs(
	group string,
	pipeline string,
	requests []*model.JobRequest,
	reactionSla *int64,
) ([]*model.Job, error) {
	if len(requests) == 0 {
		return nil, errors.New("a reaction needs at least one job")
	}
	if err := model.ValidateName("group", group); err != nil {
		return nil, err
	}
	if err := model.ValidateName("pipeline", pipeline); err != nil {
		return nil, err
	}

	reaction := util.NewReactionId()
	now := repo.clock.Now()

	jobs := make([]*model.Job, 0, len(requests))
	for _, request := range requests {
		if err := model.ValidateName("user", request.User); err != nil {
			return nil, err
		}
		if err := model.ValidateName("stage", request.Stage); err != nil {
			return nil, err
		}
		if request.Resources.CpuMillis < 0 || request.Resources.MemoryBytes < 0 || request.Resources.StorageBytes < 0 {
			return nil, errors.Errorf("job resource requests must not be negative: %s", request.Resources)
		}

		explicit := request.Sla
		if explicit == nil {
			explicit = reactionSla
		}
		basis, err := repo.calculator.Basis(group, pipeline, request.Stage, explicit)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, &model.Job{
			Id:        util.NewULID(),
			User:      request.User,
			Group:     group,
			Pipeline:  pipeline,
			Stage:     request.Stage,
			Reaction:  reaction,
			Created:   now,
			Sla:       explicit,
			Basis:     basis,
			Deadline:  basis.Deadline(now),
			Status:    model.JobCreated,
			Resources: request.Resources,
		})
	}

	for i, job := range jobs {
		if err := repo.streams.Enqueue(job); err != nil {
			return jobs[:i], err
		}
	}
	return jobs, nil
}

func (repo *RedisJobRepository) GetJob(jobId string) (*model.Job, error) {
	data, err := repo.db.Get(jobObjectKey(jobId)).Result()
	if err == redis.Nil {
		return nil, &ErrNotFound{ResourceNames: []string{fmt.Sprintf("job %q", jobId)}}
	} else if err != nil {
		return nil, errors.Wrapf(err, "failed to load job %s", jobId)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, errors.Wrapf(err, "failed to decode job %s", jobId)
	}
	return &job, nil
}

// GetJobsByIds loads many jobs in one round trip. Missing jobs come back as
// nil entries so callers can prune dangling references.
func (repo *RedisJobRepository) GetJobsByIds(jobIds []string) ([]*model.Job, error) {
	pipe := repo.db.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(jobIds))
	for _, jobId := range jobIds {
		cmds = append(cmds, pipe.Get(jobObjectKey(jobId)))
	}
	if _, err := pipe.Exec(); err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "failed to load jobs")
	}

	jobs := make([]*model.Job, len(jobIds))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to load job %s", jobIds[i])
		}
		var job model.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return nil, errors.Wrapf(err, "failed to decode job %s", jobIds[i])
		}
		jobs[i] = &job
	}
	return jobs, nil
}

// ClaimNext hands the earliest-deadline queued job of the given stage to a
// worker. The claim is version gated: agents whose MAJOR.MINOR differs from
// the required agent version may not claim. An empty queue returns
// ErrNotFound, which callers treat as benign.
func (repo *RedisJobRepository) ClaimNext(stage string, worker string, agentVersion string) (*model.Job, error) {
	settings, err := repo.settings.Get()
	if err != nil {
		return nil, err
	}
	if !model.VersionsCompatible(settings.RequiredAgentVersion, agentVersion) {
		return nil, &ErrVersionMismatch{Required: settings.RequiredAgentVersion, Agent: agentVersion}
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		zs, err := repo.db.ZRangeWithScores(claimCreatedKey(stage), 0, 0).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read claim queue for stage %s", stage)
		}
		if len(zs) == 0 {
			return nil, &ErrNotFound{ResourceNames: []string{fmt.Sprintf("queued job for stage %q", stage)}}
		}
		jobId := fmt.Sprintf("%v", zs[0].Member)

		// Removing the claim queue member is the atomic claim point; exactly
		// one of several racing claimers or cancellations sees it removed.
		removed, err := repo.db.ZRem(claimCreatedKey(stage), jobId).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to claim job %s", jobId)
		}
		if removed == 0 {
			continue
		}

		job, err := repo.GetJob(jobId)
		if err != nil {
			if _, ok := err.(*ErrNotFound); ok {
				// Dangling claim entry, its job object is gone. Prune by
				// moving on, the entry is already popped.
				log.Debugf("Pruned dangling claim entry %s for stage %s", jobId, stage)
				continue
			}
			return nil, err
		}
		if job.Status != model.JobCreated {
			continue
		}

		job.Status = model.JobRunning
		job.Worker = worker
		data, err := json.Marshal(job)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		member, err := model.NewDeadlineFragment(job).Member()
		if err != nil {
			return nil, err
		}

		namespace := job.Namespace()
		pipe := repo.db.TxPipeline()
		pipe.Set(jobObjectKey(jobId), data, 0)
		pipe.ZAdd(claimRunningKey(stage), redis.Z{Score: zs[0].Score, Member: jobId})
		pipe.ZRem(deadlinesKey(namespace), member)
		pipe.SRem(deadlineIdsKey(namespace), jobId)
		if _, err := pipe.Exec(); err != nil {
			return nil, errors.Wrapf(err, "failed to record claim of job %s", jobId)
		}
		return job, nil
	}
	return nil, &ErrNotFound{ResourceNames: []string{fmt.Sprintf("claimable job for stage %q", stage)}}
}

// Cancel removes the job from its deadline stream and claim queue and marks
// it Cancelled, provided it is still queued. Cancelling a running, finished
// or unknown job is a no-op, so a second call observes the same outcome as
// the first.
func (repo *RedisJobRepository) Cancel(jobId string) error {
	return repo.finishQueued(jobId, model.JobCancelled, "")
}

// MarkErrored terminates a queued job that can never be dispatched, for
// example after a fatal backend rejection.
func (repo *RedisJobRepository) MarkErrored(jobId string, message string) error {
	return repo.finishQueued(jobId, model.JobErrored, message)
}

func (repo *RedisJobRepository) finishQueued(jobId string, status model.JobStatus, message string) error {
	job, err := repo.GetJob(jobId)
	if err != nil {
		if _, ok := err.(*ErrNotFound); ok {
			return nil
		}
		return err
	}
	if job.Status != model.JobCreated {
		return nil
	}

	// The claim queue removal is the atomic point; losing the race against a
	// concurrent claim resolves to a benign no-op here.
	removed, err := repo.db.ZRem(claimCreatedKey(job.Stage), jobId).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to remove job %s from its claim queue", jobId)
	}
	if removed == 0 {
		return nil
	}

	job.Status = status
	if message != "" {
		job.Error = message
	}
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	member, err := model.NewDeadlineFragment(job).Member()
	if err != nil {
		return err
	}

	namespace := job.Namespace()
	pipe := repo.db.TxPipeline()
	pipe.Set(jobObjectKey(jobId), data, 0)
	pipe.ZRem(deadlinesKey(namespace), member)
	pipe.SRem(deadlineIdsKey(namespace), jobId)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "failed to finish queued job %s", jobId)
	}
	return nil
}

// ReportDone records the terminal status reported by the job's worker and
// removes the job from its running queue. Reporting an already terminal job
// returns it unchanged.
func (repo *RedisJobRepository) ReportDone(jobId string, status model.JobStatus, message string) (*model.Job, error) {
	if !status.Terminal() {
		return nil, errors.Errorf("reported status %q is not terminal", status)
	}
	job, err := repo.GetJob(jobId)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	job.Status = status
	if message != "" {
		job.Error = message
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pipe := repo.db.TxPipeline()
	pipe.Set(jobObjectKey(jobId), data, 0)
	pipe.ZRem(claimRunningKey(job.Stage), jobId)
	if _, err := pipe.Exec(); err != nil {
		return nil, errors.Wrapf(err, "failed to record completion of job %s", jobId)
	}
	return job, nil
}
