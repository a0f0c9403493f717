package backend

import (
	"sync"
	"time"

	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/scheduling"
)

// DryRunBackend simulates a cluster of fixed capacity without creating any
// workload. Spawned jobs hold their resources for the configured fake
// runtime, or forever when it is zero, so shortfall and retry behaviour can
// be exercised end to end.
type DryRunBackend struct {
	mu          sync.Mutex
	pool        *scheduling.Pool
	spawned     map[string]model.Resources
	fakeRuntime time.Duration
}

func NewDryRunBackend(capacity model.Resources, fakeRuntime time.Duration) *DryRunBackend {
	return &DryRunBackend{
		pool:        scheduling.NewPool(capacity),
		spawned:     map[string]model.Resources{},
		fakeRuntime: fakeRuntime,
	}
}

func (b *DryRunBackend) Name() string {
	return "dryrun"
}

func (b *DryRunBackend) Spawn(job *model.Job, spec model.ImageSpec) (*model.WorkerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.spawned[job.Id]; ok {
		return nil, &ErrAlreadySpawned{JobId: job.Id}
	}
	if !b.pool.Fits(job.Resources) {
		return nil, &TransientError{Reason: "simulated cluster is out of capacity"}
	}

	b.pool.Consume(job.Resources)
	b.spawned[job.Id] = job.Resources
	if b.fakeRuntime > 0 {
		jobId := job.Id
		time.AfterFunc(b.fakeRuntime, func() { b.finish(jobId) })
	}

	return &model.WorkerHandle{
		Name:    "dryrun-" + job.Id,
		Backend: b.Name(),
	}, nil
}

// Running reports how many simulated workers currently hold capacity.
func (b *DryRunBackend) Running() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.spawned)
}

func (b *DryRunBackend) finish(jobId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	resources, ok := b.spawned[jobId]
	if !ok {
		return
	}
	delete(b.spawned, jobId)
	b.pool.Release(resources)
}
