package repository

import (
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_RecomputeAverages(t *testing.T) {
	withRuntimeRepository(3, func(r *RedisRuntimeRepository) {
		require.NoError(t, r.AddSample("harvester:1.2", 100))
		require.NoError(t, r.AddSample("harvester:1.2", 200))

		average, ok, err := r.Recompute("harvester:1.2")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(150), average)

		estimate, ok, err := r.Estimate("harvester:1.2")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(150), estimate)
	})
}

func TestRuntime_WindowDropsOldestSamples(t *testing.T) {
	withRuntimeRepository(3, func(r *RedisRuntimeRepository) {
		// The first sample falls out of the window of three.
		for _, seconds := range []float64{1000, 10, 20, 30} {
			require.NoError(t, r.AddSample("harvester:1.2", seconds))
		}

		average, ok, err := r.Recompute("harvester:1.2")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(20), average)
	})
}

func TestRuntime_UnknownImageHasNoEstimate(t *testing.T) {
	withRuntimeRepository(3, func(r *RedisRuntimeRepository) {
		_, ok, err := r.Estimate("never-seen:0.1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = r.Recompute("never-seen:0.1")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Error(t, r.AddSample("harvester:1.2", -5), "negative durations are rejected")
	})
}

func TestRuntime_ImagesListsRecomputedImages(t *testing.T) {
	withRuntimeRepository(3, func(r *RedisRuntimeRepository) {
		require.NoError(t, r.AddSample("harvester:1.2", 10))
		_, _, err := r.Recompute("harvester:1.2")
		require.NoError(t, err)

		// Sampled but never recomputed images are not listed yet.
		require.NoError(t, r.AddSample("scanner:2.0", 10))

		images, err := r.Images()
		require.NoError(t, err)
		assert.Equal(t, []string{"harvester:1.2"}, images)
	})
}

func withRuntimeRepository(sampleWindow int64, action func(r *RedisRuntimeRepository)) {
	db, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: db.Addr()})
	defer redisClient.Close()
	action(NewRedisRuntimeRepository(redisClient, sampleWindow))
}
