package service

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/tidelineproject/tideline/internal/common/util"
	"github.com/tidelineproject/tideline/internal/scaler/backend"
	"github.com/tidelineproject/tideline/internal/scaler/configuration"
	"github.com/tidelineproject/tideline/internal/scaler/metrics"
	"github.com/tidelineproject/tideline/internal/scaler/model"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
	"github.com/tidelineproject/tideline/internal/scaler/scheduling"
)

// ScaleLoop is the scheduler's control loop: scan the deadline streams,
// fairshare-select from the merged window, dispatch the admitted jobs, sleep
// a dwell, repeat. It runs on a single goroutine so dispatch ordering stays
// deterministic; scalers on other hosts coordinate through per-namespace
// leases, never shared memory.
type ScaleLoop struct {
	streams  repository.DeadlineStreamRepository
	jobs     repository.JobRepository
	settings repository.SettingsRepository
	leases   repository.LeaseRepository
	workload backend.Backend

	defaultImage string
	images       map[string]string

	leasePadding      time.Duration
	banDuration       time.Duration
	dispatchRetention time.Duration

	owner string
	clock util.Clock

	// banned quarantines namespaces after integrity errors; dispatched
	// remembers spawned but not yet claimed jobs so the loop does not spawn
	// twice for them. Both are touched only by the loop goroutine.
	banned     map[string]time.Time
	dispatched map[string]time.Time
}

func NewScaleLoop(
	streams repository.DeadlineStreamRepository,
	jobs repository.JobRepository,
	settings repository.SettingsRepository,
	leases repository.LeaseRepository,
	workload backend.Backend,
	schedulingConfig configuration.SchedulingConfig,
	backendConfig configuration.BackendConfig,
) *ScaleLoop {
	leasePadding := schedulingConfig.LeasePadding
	if leasePadding <= 0 {
		leasePadding = 30 * time.Second
	}
	banDuration := schedulingConfig.BanDuration
	if banDuration <= 0 {
		banDuration = 10 * time.Minute
	}
	dispatchRetention := schedulingConfig.DispatchRetention
	if dispatchRetention <= 0 {
		dispatchRetention = 10 * time.Minute
	}

	return &ScaleLoop{
		streams:           streams,
		jobs:              jobs,
		settings:          settings,
		leases:            leases,
		workload:          workload,
		defaultImage:      backendConfig.DefaultImage,
		images:            backendConfig.Images,
		leasePadding:      leasePadding,
		banDuration:       banDuration,
		dispatchRetention: dispatchRetention,
		owner:             util.NewOwnerToken(),
		clock:             &util.UTCClock{},
		banned:            map[string]time.Time{},
		dispatched:        map[string]time.Time{},
	}
}

// Run drives the loop until stop closes. The dwell is re-read from settings
// every iteration so it can be tuned without a restart.
func (l *ScaleLoop) Run(stop <-chan struct{}) {
	for {
		start := time.Now()
		l.RunOnce()
		metrics.RecordScaleLoopDuration(time.Since(start).Seconds())

		select {
		case <-stop:
			return
		case <-time.After(l.dwell()):
		}
	}
}

func (l *ScaleLoop) dwell() time.Duration {
	settings, err := l.settings.Get()
	if err != nil {
		log.Errorf("Failed to load settings for the dwell: %s", err)
		return model.DefaultSystemSettings().Dwell()
	}
	return settings.Dwell()
}

// RunOnce performs one scan-and-dispatch cycle over every namespace this
// scaler can lease.
func (l *ScaleLoop) RunOnce() {
	settings, err := l.settings.Get()
	if err != nil {
		log.Errorf("Failed to load system settings, skipping loop: %s", err)
		return
	}

	l.sweep()

	namespaces, err := l.streams.Namespaces()
	if err != nil {
		log.Errorf("Failed to list namespaces, skipping loop: %s", err)
		return
	}

	leaseTtl := 2*settings.Dwell() + l.leasePadding
	held := make([]string, 0, len(namespaces))
	defer func() { l.releaseLeases(held) }()

	entries := make([]model.DeadlineEntry, 0)
	for _, namespace := range namespaces {
		if until, ok := l.banned[namespace]; ok && l.clock.Now().Before(until) {
			continue
		}

		acquired, err := l.leases.TryAcquire(namespace, l.owner, leaseTtl)
		if err != nil {
			log.Errorf("Failed to acquire lease for namespace %s: %s", namespace, err)
			continue
		}
		if !acquired {
			continue
		}
		held = append(held, namespace)

		windowed, err := l.streams.PeekWindow(namespace, settings.DeadlineWindow)
		if err != nil {
			if corrupt, ok := err.(*repository.ErrCorruptStream); ok {
				l.ban(namespace, corrupt)
			} else {
				log.Errorf("Failed to scan namespace %s: %s", namespace, err)
			}
			continue
		}
		entries = append(entries, windowed...)
	}

	// Merge the per-namespace windows back into one deadline order. The seq
	// tie-break only orders entries within a namespace, which is all FIFO
	// ever promised.
	slices.SortStableFunc(entries, func(a, b model.DeadlineEntry) bool {
		if a.Deadline.Equal(b.Deadline) {
			return a.Fragment.Seq < b.Fragment.Seq
		}
		return a.Deadline.Before(b.Deadline)
	})
	if int64(len(entries)) > settings.DeadlineWindow {
		entries = entries[:settings.DeadlineWindow]
	}

	candidates := l.loadCandidates(entries)
	if len(candidates) == 0 {
		return
	}

	capacity := settings.FairsharePool()
	ledger := scheduling.NewLedger(capacity, int64(len(distinctUsers(candidates))))
	selection := scheduling.Select(candidates, ledger, scheduling.NewPool(capacity), settings.MaxSway)
	if selection.Relaxed {
		metrics.RecordRelaxedLoop()
	}
	if selection.SkippedQuota > 0 || selection.SkippedPool > 0 {
		log.Infof("Fairshare admitted %d of %d candidates, skipped %d over share and %d over pool",
			len(selection.Admitted), len(candidates), selection.SkippedQuota, selection.SkippedPool)
	}

	for _, admitted := range selection.Admitted {
		l.dispatch(admitted)
	}
}

// loadCandidates resolves stream entries into jobs, skipping already
// dispatched ones and pruning entries whose job is gone or no longer queued.
func (l *ScaleLoop) loadCandidates(entries []model.DeadlineEntry) []scheduling.Candidate {
	fresh := make([]model.DeadlineEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := l.dispatched[entry.Fragment.JobId]; ok {
			continue
		}
		fresh = append(fresh, entry)
	}
	if len(fresh) == 0 {
		return nil
	}

	ids := make([]string, 0, len(fresh))
	for _, entry := range fresh {
		ids = append(ids, entry.Fragment.JobId)
	}
	jobs, err := l.jobs.GetJobsByIds(ids)
	if err != nil {
		log.Errorf("Failed to load candidate jobs: %s", err)
		return nil
	}

	candidates := make([]scheduling.Candidate, 0, len(fresh))
	for i, entry := range fresh {
		if jobs[i] == nil || jobs[i].Status != model.JobCreated {
			l.pruneEntry(entry)
			continue
		}
		candidates = append(candidates, scheduling.Candidate{Entry: entry, Job: jobs[i]})
	}
	return candidates
}

func (l *ScaleLoop) pruneEntry(entry model.DeadlineEntry) {
	namespace := entry.Fragment.Namespace()
	log.Debugf("Pruning dangling stream entry for job %s in namespace %s", entry.Fragment.JobId, namespace)
	if err := l.streams.RemoveEntry(namespace, entry.Fragment); err != nil {
		log.Warnf("Failed to prune stream entry for job %s: %s", entry.Fragment.JobId, err)
	}
}

func (l *ScaleLoop) dispatch(candidate scheduling.Candidate) {
	job := candidate.Job
	namespace := job.Namespace()

	handle, err := l.workload.Spawn(job, l.imageSpec(job.Stage))
	if err != nil {
		switch cause := err.(type) {
		case *backend.ErrAlreadySpawned:
			// A worker from a spawn this process no longer remembers; record
			// it so the loop stops trying.
			l.dispatched[job.Id] = l.clock.Now()
		case *backend.TransientError:
			metrics.RecordDispatchTransient(namespace)
			log.Infof("Leaving job %s queued after transient dispatch failure: %s", job.Id, cause)
		case *backend.FatalError:
			metrics.RecordDispatchFatal(namespace)
			log.Errorf("Erroring job %s, its dispatch can never succeed: %s", job.Id, cause)
			if err := l.jobs.MarkErrored(job.Id, cause.Error()); err != nil {
				log.Errorf("Failed to mark job %s errored: %s", job.Id, err)
			}
		default:
			metrics.RecordDispatchTransient(namespace)
			log.Errorf("Failed to dispatch job %s: %s", job.Id, err)
		}
		return
	}

	l.dispatched[job.Id] = l.clock.Now()
	metrics.RecordDispatched(namespace)
	log.Infof("Dispatched job %s to %s worker %s", job.Id, handle.Backend, handle.Name)
}

func (l *ScaleLoop) imageSpec(stage string) model.ImageSpec {
	image, ok := l.images[stage]
	if !ok {
		image = l.defaultImage
	}
	return model.ImageSpec{Image: image}
}

// ban quarantines a namespace so one poisoned stream cannot dominate every
// loop with parse failures. The ban is in-memory: another scaler instance,
// or this one after a restart, will retry sooner, which is acceptable.
func (l *ScaleLoop) ban(namespace string, cause error) {
	until := l.clock.Now().Add(l.banDuration)
	l.banned[namespace] = until
	metrics.RecordNamespaceBanned(namespace)
	log.Errorf("Quarantining namespace %s until %s: %s", namespace, until.Format(time.RFC3339), cause)
}

// sweep expires bans and forgets dispatches old enough that their worker
// should long since have claimed or died.
func (l *ScaleLoop) sweep() {
	now := l.clock.Now()
	for namespace, until := range l.banned {
		if !now.Before(until) {
			delete(l.banned, namespace)
			log.Infof("Namespace %s left quarantine", namespace)
		}
	}
	for jobId, at := range l.dispatched {
		if now.Sub(at) > l.dispatchRetention {
			delete(l.dispatched, jobId)
		}
	}
}

func (l *ScaleLoop) releaseLeases(namespaces []string) {
	for _, namespace := range namespaces {
		if err := l.leases.Release(namespace, l.owner); err != nil {
			log.Warnf("Failed to release lease for namespace %s: %s", namespace, err)
		}
	}
}

func distinctUsers(candidates []scheduling.Candidate) []string {
	users := map[string]bool{}
	for _, candidate := range candidates {
		users[candidate.Job.User] = true
	}
	return maps.Keys(users)
}
