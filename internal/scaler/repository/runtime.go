package repository

import (
	"strconv"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const (
	ttcPrefix      = "Ttc:"
	runtimeHashKey = "Runtime"
)

func ttcKey(image string) string {
	return ttcPrefix + image
}

type RuntimeRepository interface {
	AddSample(image string, seconds float64) error
	Recompute(image string) (float64, bool, error)
	Estimate(image string) (float64, bool, error)
	Images() ([]string, error)
}

// RedisRuntimeRepository keeps a bounded list of time-to-complete samples per
// image and the rolling average derived from them. The window bounds history
// so drifting runtimes converge within one window without unbounded storage.
type RedisRuntimeRepository struct {
	db           redis.UniversalClient
	sampleWindow int64
}

func NewRedisRuntimeRepository(db redis.UniversalClient, sampleWindow int64) *RedisRuntimeRepository {
	return &RedisRuntimeRepository{db: db, sampleWindow: sampleWindow}
}

// AddSample records one completed execution's duration in seconds, trimming
// the sample list to the configured window.
func (r *RedisRuntimeRepository) AddSample(image string, seconds float64) error {
	if seconds < 0 {
		return errors.Errorf("execution duration must not be negative: %f", seconds)
	}
	pipe := r.db.TxPipeline()
	pipe.LPush(ttcKey(image), strconv.FormatFloat(seconds, 'f', -1, 64))
	pipe.LTrim(ttcKey(image), 0, r.sampleWindow-1)
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "failed to record runtime sample for image %s", image)
	}
	return nil
}

// Recompute averages the current sample window and stores the result as the
// image's runtime estimate. Returns false when the image has no samples yet.
func (r *RedisRuntimeRepository) Recompute(image string) (float64, bool, error) {
	samples, err := r.db.LRange(ttcKey(image), 0, -1).Result()
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read runtime samples for image %s", image)
	}
	if len(samples) == 0 {
		return 0, false, nil
	}

	var sum float64
	for _, sample := range samples {
		value, err := strconv.ParseFloat(sample, 64)
		if err != nil {
			return 0, false, errors.Wrapf(err, "runtime sample for image %s is not a number: %q", image, sample)
		}
		sum += value
	}
	average := sum / float64(len(samples))

	if err := r.db.HSet(runtimeHashKey, image, strconv.FormatFloat(average, 'f', -1, 64)).Err(); err != nil {
		return 0, false, errors.Wrapf(err, "failed to store runtime estimate for image %s", image)
	}
	return average, true, nil
}

// Estimate returns the stored rolling average in seconds. Returns false for
// images that have never completed a job.
func (r *RedisRuntimeRepository) Estimate(image string) (float64, bool, error) {
	value, err := r.db.HGet(runtimeHashKey, image).Result()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, errors.Wrapf(err, "failed to load runtime estimate for image %s", image)
	}

	estimate, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "runtime estimate for image %s is not a number: %q", image, value)
	}
	return estimate, true, nil
}

func (r *RedisRuntimeRepository) Images() ([]string, error) {
	images, err := r.db.HKeys(runtimeHashKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list images with runtime estimates")
	}
	return images, nil
}
