package configuration

import (
	"time"

	"github.com/go-redis/redis"
	"k8s.io/apimachinery/pkg/api/resource"
)

type ScalerConfig struct {
	// MetricsPort serves prometheus metrics and the health endpoints.
	MetricsPort uint16

	Redis redis.UniversalOptions

	Scheduling SchedulingConfig
	Backend    BackendConfig
}

type SchedulingConfig struct {
	// DefaultSla applies when neither the job nor its pipeline carries one.
	DefaultSla time.Duration

	// NewImageEstimate is the conservative runtime estimate used for images
	// that have never completed a job.
	NewImageEstimate time.Duration

	// SampleWindow is how many completion samples per image feed the rolling
	// runtime average.
	SampleWindow int64

	// EstimateCacheSize bounds the in-process cache of runtime estimates.
	EstimateCacheSize int

	// EstimateRefreshInterval controls how often averages are recomputed to
	// pick up samples recorded by other processes.
	EstimateRefreshInterval time.Duration

	// ConsistencyScanInterval controls how often queued state is checked
	// against the current system settings.
	ConsistencyScanInterval time.Duration

	// LeasePadding is added on top of twice the dwell to form the namespace
	// lease TTL, covering scans that run long.
	LeasePadding time.Duration

	// BanDuration is how long a namespace is quarantined after a data
	// integrity error.
	BanDuration time.Duration

	// DispatchRetention is how long a dispatched but unclaimed job is
	// remembered before the scaler will consider spawning for it again.
	DispatchRetention time.Duration
}

type BackendConfig struct {
	// Type selects the workload backend, either "kubernetes" or "dryrun".
	Type string

	// DefaultImage runs stages with no explicit image mapping.
	DefaultImage string

	// Images maps stage names to container images.
	Images map[string]string

	Kubernetes KubernetesBackendConfig
	DryRun     DryRunBackendConfig
}

type KubernetesBackendConfig struct {
	// Namespace is where worker pods are created.
	Namespace string

	// SpawnTimeout bounds each pod creation call.
	SpawnTimeout time.Duration

	ImagePullPolicy string
}

type DryRunBackendConfig struct {
	// Pool is the simulated cluster capacity.
	Pool ResourcesConfig

	// FakeRuntime releases a spawned job's resources after this duration,
	// zero keeps them held forever.
	FakeRuntime time.Duration
}

type ResourcesConfig struct {
	Cpu     resource.Quantity
	Memory  resource.Quantity
	Storage resource.Quantity
}
