package repository

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidelineproject/tideline/internal/common/util"
	"github.com/tidelineproject/tideline/internal/scaler/model"
)

func TestEnqueueReactionJobs_ExplicitSlaSetsDeadline(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs, err := r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: smallRequest(), Sla: int64Ptr(86400)},
		}, nil)
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		// An explicit SLA is honoured as given, even though the runtime
		// estimate bound is far shorter.
		assert.Equal(t, testBase.Add(86400*time.Second), jobs[0].Deadline)
		assert.True(t, jobs[0].Basis.Explicit)
		assert.Equal(t, jobs[0].Deadline, jobs[0].Basis.Deadline(jobs[0].Created),
			"stored basis re-derives the same deadline")
	})
}

func TestEnqueueReactionJobs_DefaultSlaBoundedByEstimate(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs, err := r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: smallRequest()},
		}, nil)
		require.NoError(t, err)
		require.Len(t, jobs, 1)

		// No SLA anywhere: the defaulted week long SLA is pulled in to the
		// 300s estimate bound.
		assert.Equal(t, testBase.Add(300*time.Second), jobs[0].Deadline)
		assert.False(t, jobs[0].Basis.Explicit)
	})
}

func TestEnqueueReactionJobs_JobSlaBeatsReactionSla(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs, err := r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: smallRequest(), Sla: int64Ptr(3600)},
			{User: "alice", Stage: "scan", Resources: smallRequest()},
		}, int64Ptr(7200))
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		assert.Equal(t, testBase.Add(3600*time.Second), jobs[0].Deadline)
		assert.Equal(t, testBase.Add(7200*time.Second), jobs[1].Deadline)
	})
}

func TestEnqueueReactionJobs_SharedReactionId(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs, err := r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: smallRequest()},
			{User: "alice", Stage: "scan", Resources: smallRequest()},
		}, nil)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.NotEmpty(t, jobs[0].Reaction)
		assert.Equal(t, jobs[0].Reaction, jobs[1].Reaction)
		assert.NotEqual(t, jobs[0].Id, jobs[1].Id)
	})
}

func TestEnqueueReactionJobs_RejectsBadInput(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		_, err := r.EnqueueReactionJobs("corp", "triage", nil, nil)
		assert.Error(t, err)

		_, err = r.EnqueueReactionJobs("corp/evil", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: smallRequest()},
		}, nil)
		assert.Error(t, err)

		_, err = r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
			{User: "alice", Stage: "unpack", Resources: model.Resources{CpuMillis: -1}},
		}, nil)
		assert.Error(t, err)

		namespaces, err := r.streams.Namespaces()
		require.NoError(t, err)
		assert.Empty(t, namespaces, "rejected reactions leave no trace")
	})
}

func TestGetJob(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs := enqueueOne(t, r, "alice", int64Ptr(3600))

		loaded, err := r.GetJob(jobs[0].Id)
		require.NoError(t, err)
		assert.Equal(t, jobs[0].Id, loaded.Id)
		assert.Equal(t, model.JobCreated, loaded.Status)

		_, err = r.GetJob("no-such-job")
		var notFound *ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestGetJobsByIds_MissingJobsAreNil(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		jobs := enqueueOne(t, r, "alice", int64Ptr(3600))

		loaded, err := r.GetJobsByIds([]string{jobs[0].Id, "no-such-job"})
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, jobs[0].Id, loaded[0].Id)
		assert.Nil(t, loaded[1])
	})
}

func TestClaimNext_PopsEarliestDeadlineFirst(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		late := enqueueOne(t, r, "alice", int64Ptr(7200))[0]
		early := enqueueOne(t, r, "bob", int64Ptr(3600))[0]

		claimed, err := r.ClaimNext("unpack", "worker-1", "1.0.0")
		require.NoError(t, err)
		assert.Equal(t, early.Id, claimed.Id)
		assert.Equal(t, model.JobRunning, claimed.Status)
		assert.Equal(t, "worker-1", claimed.Worker)

		// The claim clears the stream entry so the loop stops considering it.
		depth, err := r.streams.Depth("corp:triage")
		require.NoError(t, err)
		assert.Equal(t, int64(1), depth)

		next, err := r.ClaimNext("unpack", "worker-2", "1.0.0")
		require.NoError(t, err)
		assert.Equal(t, late.Id, next.Id)

		_, err = r.ClaimNext("unpack", "worker-3", "1.0.0")
		var notFound *ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestClaimNext_VersionGate(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		enqueueOne(t, r, "alice", int64Ptr(3600))

		settings := model.DefaultSystemSettings()
		settings.RequiredAgentVersion = "4.2"
		require.NoError(t, r.settings.Update(settings))

		_, err := r.ClaimNext("unpack", "worker-1", "4.3.1")
		var mismatch *ErrVersionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, "4.2", mismatch.Required)

		claimed, err := r.ClaimNext("unpack", "worker-1", "4.2.7")
		require.NoError(t, err)
		assert.Equal(t, model.JobRunning, claimed.Status)
	})
}

func TestClaimNext_StepsOverDanglingEntries(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		gone := enqueueOne(t, r, "alice", int64Ptr(3600))[0]
		kept := enqueueOne(t, r, "bob", int64Ptr(7200))[0]
		require.NoError(t, r.db.Del(jobObjectKey(gone.Id)).Err())

		claimed, err := r.ClaimNext("unpack", "worker-1", "1.0.0")
		require.NoError(t, err)
		assert.Equal(t, kept.Id, claimed.Id)

		// The dangling claim entry was consumed on the way past.
		queued, err := r.db.ZCard(claimCreatedKey("unpack")).Result()
		require.NoError(t, err)
		assert.Zero(t, queued)
	})
}

func TestCancel_QueuedJob(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		job := enqueueOne(t, r, "alice", int64Ptr(3600))[0]

		require.NoError(t, r.Cancel(job.Id))

		cancelled, err := r.GetJob(job.Id)
		require.NoError(t, err)
		assert.Equal(t, model.JobCancelled, cancelled.Status)

		depth, err := r.streams.Depth("corp:triage")
		require.NoError(t, err)
		assert.Zero(t, depth)

		_, err = r.ClaimNext("unpack", "worker-1", "1.0.0")
		var notFound *ErrNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestCancel_IsIdempotent(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		job := enqueueOne(t, r, "alice", int64Ptr(3600))[0]

		require.NoError(t, r.Cancel(job.Id))
		require.NoError(t, r.Cancel(job.Id), "second cancel observes the same outcome")
		require.NoError(t, r.Cancel("no-such-job"), "cancelling an unknown job is benign")

		cancelled, err := r.GetJob(job.Id)
		require.NoError(t, err)
		assert.Equal(t, model.JobCancelled, cancelled.Status)
	})
}

func TestCancel_RunningJobIsUntouched(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		job := enqueueOne(t, r, "alice", int64Ptr(3600))[0]
		_, err := r.ClaimNext("unpack", "worker-1", "1.0.0")
		require.NoError(t, err)

		require.NoError(t, r.Cancel(job.Id))

		running, err := r.GetJob(job.Id)
		require.NoError(t, err)
		assert.Equal(t, model.JobRunning, running.Status)
	})
}

func TestMarkErrored_RecordsMessage(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		job := enqueueOne(t, r, "alice", int64Ptr(3600))[0]

		require.NoError(t, r.MarkErrored(job.Id, "image is not deployable"))

		errored, err := r.GetJob(job.Id)
		require.NoError(t, err)
		assert.Equal(t, model.JobErrored, errored.Status)
		assert.Equal(t, "image is not deployable", errored.Error)
	})
}

func TestReportDone(t *testing.T) {
	withJobRepository(func(r *RedisJobRepository) {
		job := enqueueOne(t, r, "alice", int64Ptr(3600))[0]
		_, err := r.ClaimNext("unpack", "worker-1", "1.0.0")
		require.NoError(t, err)

		done, err := r.ReportDone(job.Id, model.JobCompleted, "")
		require.NoError(t, err)
		assert.Equal(t, model.JobCompleted, done.Status)

		running, err := r.db.ZCard(claimRunningKey("unpack")).Result()
		require.NoError(t, err)
		assert.Zero(t, running)

		// A late duplicate report does not overwrite the first outcome.
		again, err := r.ReportDone(job.Id, model.JobFailed, "crashed")
		require.NoError(t, err)
		assert.Equal(t, model.JobCompleted, again.Status)

		_, err = r.ReportDone(job.Id, model.JobRunning, "")
		assert.Error(t, err, "only terminal statuses can be reported")
	})
}

// stubCalculator resolves the SLA layering without touching runtime data:
// explicit SLAs pass through, everything else falls to a fixed default
// bounded by a fixed estimate.
type stubCalculator struct {
	defaultSla    int64
	estimateBound int64
}

func (c *stubCalculator) Basis(group string, pipeline string, stage string, explicitSla *int64) (model.DeadlineBasis, error) {
	basis := model.DeadlineBasis{ResolvedSla: c.defaultSla, EstimateBound: c.estimateBound}
	if explicitSla != nil {
		basis.ResolvedSla = *explicitSla
		basis.Explicit = true
	}
	return basis, nil
}

func withJobRepository(action func(r *RedisJobRepository)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer redisClient.Close()

	repo := NewRedisJobRepository(
		redisClient,
		NewRedisDeadlineStreamRepository(redisClient),
		&stubCalculator{defaultSla: 604800, estimateBound: 300},
		NewRedisSettingsRepository(redisClient),
	)
	repo.clock = &util.DummyClock{T: testBase}
	action(repo)
}

func enqueueOne(t *testing.T, r *RedisJobRepository, user string, sla *int64) []*model.Job {
	t.Helper()
	jobs, err := r.EnqueueReactionJobs("corp", "triage", []*model.JobRequest{
		{User: user, Stage: "unpack", Resources: smallRequest(), Sla: sla},
	}, nil)
	require.NoError(t, err)
	return jobs
}

func smallRequest() model.Resources {
	return model.Resources{CpuMillis: 1000, MemoryBytes: 1 << 30}
}

func int64Ptr(v int64) *int64 {
	return &v
}
