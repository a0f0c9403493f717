package service

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

// Estimator serves runtime estimates to the deadline calculation and feeds
// completion samples back into the rolling averages. Reads come from an in
// process cache; the backing averages are recomputed on every completion and
// periodically via RefreshAll to pick up samples recorded by other scalers.
type Estimator struct {
	runtimes        repository.RuntimeRepository
	cache           *lru.Cache
	defaultEstimate time.Duration
}

func NewEstimator(runtimes repository.RuntimeRepository, cacheSize int, defaultEstimate time.Duration) (*Estimator, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		runtimes:        runtimes,
		cache:           cache,
		defaultEstimate: defaultEstimate,
	}, nil
}

// Estimate returns the image's current average runtime, or the conservative
// default for images that never completed a job. Misses are deliberately not
// cached so the first completion shows up without waiting out a cache entry.
func (e *Estimator) Estimate(image string) time.Duration {
	if cached, ok := e.cache.Get(image); ok {
		return cached.(time.Duration)
	}

	seconds, ok, err := e.runtimes.Estimate(image)
	if err != nil {
		log.Warnf("Failed to load runtime estimate for image %s: %s", image, err)
		return e.defaultEstimate
	}
	if !ok {
		return e.defaultEstimate
	}

	estimate := secondsToDuration(seconds)
	e.cache.Add(image, estimate)
	return estimate
}

// RecordCompletion feeds one finished execution into the image's average.
func (e *Estimator) RecordCompletion(image string, duration time.Duration) error {
	if err := e.runtimes.AddSample(image, duration.Seconds()); err != nil {
		return err
	}
	average, ok, err := e.runtimes.Recompute(image)
	if err != nil {
		return err
	}
	if ok {
		e.cache.Add(image, secondsToDuration(average))
	}
	return nil
}

// RefreshAll recomputes the average of every known image. Registered as a
// background task so estimates drift no further than the refresh interval
// behind samples recorded by other processes.
func (e *Estimator) RefreshAll() {
	images, err := e.runtimes.Images()
	if err != nil {
		log.Errorf("Failed to list images for estimate refresh: %s", err)
		return
	}
	for _, image := range images {
		average, ok, err := e.runtimes.Recompute(image)
		if err != nil {
			log.Warnf("Failed to refresh runtime estimate for image %s: %s", image, err)
			continue
		}
		if ok {
			e.cache.Add(image, secondsToDuration(average))
		}
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
