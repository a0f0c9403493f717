package scaler

import (
	"os"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/tidelineproject/tideline/internal/common/health"
	"github.com/tidelineproject/tideline/internal/common/task"
	"github.com/tidelineproject/tideline/internal/scaler/backend"
	"github.com/tidelineproject/tideline/internal/scaler/configuration"
	"github.com/tidelineproject/tideline/internal/scaler/metrics"
	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
	"github.com/tidelineproject/tideline/internal/scaler/scheduling"
	"github.com/tidelineproject/tideline/internal/scaler/service"
)

// StartUp wires the scaler and starts its background work. It returns a
// cleanup function and a WaitGroup the caller waits on; calling cleanup stops
// everything and releases the wait.
func StartUp(config *configuration.ScalerConfig, healthChecks *health.MultiChecker) (func(), *sync.WaitGroup) {
	applySchedulingDefaults(&config.Scheduling)

	db := redis.NewUniversalClient(&config.Redis)
	err := retry.Do(
		func() error { return db.Ping().Err() },
		retry.Attempts(30),
	)
	if err != nil {
		log.Errorf("Failed to reach redis at %v: %s", config.Redis.Addrs, err)
		os.Exit(-1)
	}
	healthChecks.Add(repository.NewRedisHealth(db))

	streams := repository.NewRedisDeadlineStreamRepository(db)
	settings := repository.NewCachedSettingsRepository(repository.NewRedisSettingsRepository(db))
	runtimes := repository.NewRedisRuntimeRepository(db, config.Scheduling.SampleWindow)
	leases := repository.NewRedisLeaseRepository(db)

	estimator, err := service.NewEstimator(runtimes, config.Scheduling.EstimateCacheSize, config.Scheduling.NewImageEstimate)
	if err != nil {
		log.Errorf("Failed to create the runtime estimator: %s", err)
		os.Exit(-1)
	}
	calculator := scheduling.NewCalculator(estimator, settings, int64(config.Scheduling.DefaultSla.Seconds()))
	jobs := repository.NewRedisJobRepository(db, streams, calculator, settings)

	workload, err := createBackend(config)
	if err != nil {
		log.Errorf("Failed to create the workload backend: %s", err)
		os.Exit(-1)
	}
	log.Infof("Dispatching through the %s backend", workload.Name())

	metrics.ExposeSchedulingMetrics(streams)

	scanner := service.NewConsistencyScanner(streams, jobs, settings)
	taskManager := task.NewBackgroundTaskManager(metrics.MetricPrefix)
	taskManager.Register(estimator.RefreshAll, config.Scheduling.EstimateRefreshInterval, "estimate_refresh")
	taskManager.Register(scanner.Report, config.Scheduling.ConsistencyScanInterval, "consistency_scan")

	loop := service.NewScaleLoop(streams, jobs, settings, leases, workload, config.Scheduling, config.Backend)
	stop := make(chan struct{})
	go loop.Run(stop)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	return func() {
		close(stop)
		if taskManager.StopAll(2 * time.Second) {
			log.Warn("Background tasks did not stop within the shutdown deadline")
		}
		if err := db.Close(); err != nil {
			log.WithError(err).Error("failed to close Redis client")
		}
		wg.Done()
	}, wg
}

func createBackend(config *configuration.ScalerConfig) (backend.Backend, error) {
	switch config.Backend.Type {
	case "kubernetes":
		return backend.NewKubernetesBackend(config.Backend.Kubernetes)
	case "dryrun":
		pool := config.Backend.DryRun.Pool
		capacity := model.ResourcesFromQuantities(pool.Cpu, pool.Memory, pool.Storage)
		return backend.NewDryRunBackend(capacity, config.Backend.DryRun.FakeRuntime), nil
	}
	return nil, errors.Errorf("unknown backend type %q", config.Backend.Type)
}

func applySchedulingDefaults(config *configuration.SchedulingConfig) {
	if config.DefaultSla <= 0 {
		config.DefaultSla = 168 * time.Hour
	}
	if config.NewImageEstimate <= 0 {
		config.NewImageEstimate = 10 * time.Minute
	}
	if config.SampleWindow <= 0 {
		config.SampleWindow = 10000
	}
	if config.EstimateCacheSize <= 0 {
		config.EstimateCacheSize = 10000
	}
	if config.EstimateRefreshInterval <= 0 {
		config.EstimateRefreshInterval = time.Minute
	}
	if config.ConsistencyScanInterval <= 0 {
		config.ConsistencyScanInterval = time.Hour
	}
}
