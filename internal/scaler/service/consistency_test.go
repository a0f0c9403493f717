package service

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

func TestScan_CleanStateIsSilent(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		f.seed("job-a", "alice", "etl", loopTestBase.Add(time.Hour), smallRequest())
		f.seed("job-b", "bob", "triage", loopTestBase.Add(2*time.Hour), smallRequest())

		assert.NoError(t, scanner.Scan())
	})
}

func TestScan_FlagsRequestsThatCanNeverFit(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		f.configure(func(s *model.SystemSettings) { s.FairshareCpu = 2000 })
		f.seed("job-slim", "alice", "etl", loopTestBase.Add(time.Hour), smallRequest())
		f.seed("job-fat", "alice", "etl", loopTestBase.Add(2*time.Hour),
			model.Resources{CpuMillis: 3000, MemoryBytes: 1 << 30})

		err := scanner.Scan()
		require.Error(t, err)

		var finding *repository.ErrConfigInconsistency
		require.True(t, errors.As(err, &finding))
		assert.Equal(t, "job-fat", finding.JobId)
		assert.Contains(t, finding.Detail, "can never fit")

		merged := err.(*multierror.Error)
		assert.Equal(t, 1, merged.Len(), "the fitting job is not flagged")
	})
}

func TestScan_FlagsEntriesWithoutAJobObject(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		f.seed("job-ghost", "alice", "etl", loopTestBase.Add(time.Hour), smallRequest())
		require.NoError(t, f.client.Del("Job:job-ghost").Err())

		err := scanner.Scan()
		require.Error(t, err)

		var finding *repository.ErrConfigInconsistency
		require.True(t, errors.As(err, &finding))
		assert.Equal(t, "job-ghost", finding.JobId)
		assert.Contains(t, finding.Detail, "no job object")
	})
}

func TestScan_FlagsDuplicateGuardDrift(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		f.seed("job-a", "alice", "etl", loopTestBase.Add(time.Hour), smallRequest())
		require.NoError(t, f.client.SRem("DeadlineIds:corp:etl", "job-a").Err())

		err := scanner.Scan()
		require.Error(t, err)

		var finding *repository.ErrConfigInconsistency
		require.True(t, errors.As(err, &finding))
		assert.Contains(t, finding.Detail, "duplicate guard")
	})
}

func TestScan_ReportsCorruptStreams(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		f.seed("job-a", "alice", "etl", loopTestBase.Add(time.Hour), smallRequest())
		require.NoError(t, f.client.ZAdd("Deadlines:corp:etl", redis.Z{Score: 1, Member: "garbage"}).Err())

		err := scanner.Scan()
		require.Error(t, err)

		var corrupt *repository.ErrCorruptStream
		assert.True(t, errors.As(err, &corrupt))
	})
}

func TestScan_FlagsInvalidStoredSettings(t *testing.T) {
	withScanner(func(scanner *ConsistencyScanner, f *loopFixture) {
		// Simulates drift written by an older or foreign client; Update would
		// have rejected this.
		raw := `{"fairshareCpu":16000,"fairshareMemory":68719476736,"deadlineWindow":100000,"maxSway":0,"dwell":5,"cacheLifetime":600}`
		require.NoError(t, f.client.Set("SystemSettings", raw, 0).Err())

		err := scanner.Scan()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maxSway must be positive")
	})
}

func withScanner(action func(scanner *ConsistencyScanner, f *loopFixture)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer redisClient.Close()

	streams := repository.NewRedisDeadlineStreamRepository(redisClient)
	settings := repository.NewRedisSettingsRepository(redisClient)
	jobs := repository.NewRedisJobRepository(redisClient, streams, &loopTestCalculator{}, settings)

	scanner := NewConsistencyScanner(streams, jobs, settings)
	action(scanner, &loopFixture{
		client:   redisClient,
		streams:  streams,
		jobs:     jobs,
		settings: settings,
	})
}
