package service

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

func TestComplete_SuccessFeedsTheRuntimeEstimate(t *testing.T) {
	withCompletionService(func(s *CompletionService, f *completionFixture) {
		f.seedClaimed(t, "job-1")

		job, err := s.Complete("job-1", model.JobCompleted, "", 120*time.Second)
		require.NoError(t, err)
		assert.Equal(t, model.JobCompleted, job.Status)

		assert.Equal(t, 120*time.Second, f.estimator.Estimate("unpack"))
	})
}

func TestComplete_FailuresDoNotFeedTheEstimate(t *testing.T) {
	withCompletionService(func(s *CompletionService, f *completionFixture) {
		f.seedClaimed(t, "job-1")

		job, err := s.Complete("job-1", model.JobFailed, "crashed", 90*time.Second)
		require.NoError(t, err)
		assert.Equal(t, model.JobFailed, job.Status)
		assert.Equal(t, "crashed", job.Error)

		assert.Equal(t, 600*time.Second, f.estimator.Estimate("unpack"),
			"failed runs say nothing about how long the work takes")
	})
}

func TestComplete_UnmeasuredRunsLeaveTheEstimateAlone(t *testing.T) {
	withCompletionService(func(s *CompletionService, f *completionFixture) {
		f.seedClaimed(t, "job-1")

		_, err := s.Complete("job-1", model.JobCompleted, "", 0)
		require.NoError(t, err)

		assert.Equal(t, 600*time.Second, f.estimator.Estimate("unpack"))
	})
}

func TestComplete_UnknownJobIsNotFound(t *testing.T) {
	withCompletionService(func(s *CompletionService, f *completionFixture) {
		_, err := s.Complete("job-nope", model.JobCompleted, "", time.Second)

		var notFound *repository.ErrNotFound
		assert.True(t, errors.As(err, &notFound))
	})
}

type completionFixture struct {
	streams   *repository.RedisDeadlineStreamRepository
	jobs      *repository.RedisJobRepository
	estimator *Estimator
}

// seedClaimed enqueues one job and claims it, leaving it Running the way a
// worker would see it just before reporting back.
func (f *completionFixture) seedClaimed(t *testing.T, id string) {
	job := &model.Job{
		Id:        id,
		User:      "alice",
		Group:     "corp",
		Pipeline:  "etl",
		Stage:     "unpack",
		Reaction:  "reaction-1",
		Created:   time.Now().UTC(),
		Basis:     model.DeadlineBasis{ResolvedSla: 3600, Explicit: true},
		Deadline:  time.Now().UTC().Add(time.Hour),
		Status:    model.JobCreated,
		Resources: model.Resources{CpuMillis: 1000, MemoryBytes: 1 << 30},
	}
	require.NoError(t, f.streams.Enqueue(job))
	_, err := f.jobs.ClaimNext("unpack", "worker-1", "")
	require.NoError(t, err)
}

func withCompletionService(action func(s *CompletionService, f *completionFixture)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer redisClient.Close()

	streams := repository.NewRedisDeadlineStreamRepository(redisClient)
	settings := repository.NewRedisSettingsRepository(redisClient)
	runtimes := repository.NewRedisRuntimeRepository(redisClient, 100)
	jobs := repository.NewRedisJobRepository(redisClient, streams, &loopTestCalculator{}, settings)

	estimator, err := NewEstimator(runtimes, 16, 600*time.Second)
	if err != nil {
		panic(err)
	}

	action(NewCompletionService(jobs, estimator), &completionFixture{
		streams:   streams,
		jobs:      jobs,
		estimator: estimator,
	})
}
