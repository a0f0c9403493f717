package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type periodicTask struct {
	run        func()
	interval   time.Duration
	metricName string
	stop       chan struct{}
}

// BackgroundTaskManager runs registered functions periodically until stopped.
// It is not threadsafe and should only be accessed from a single goroutine.
type BackgroundTaskManager struct {
	tasks         []*periodicTask
	metricsPrefix string
	wg            sync.WaitGroup
}

func NewBackgroundTaskManager(metricsPrefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		metricsPrefix: metricsPrefix,
	}
}

// Register runs the given function immediately and then every interval.
// Each invocation is timed into a <prefix><metricName>_latency_seconds histogram.
func (m *BackgroundTaskManager) Register(run func(), interval time.Duration, metricName string) {
	t := &periodicTask{
		run:        run,
		interval:   interval,
		metricName: metricName,
		stop:       make(chan struct{}),
	}
	m.tasks = append(m.tasks, t)
	m.start(t)
}

// StopAll signals every task to stop and waits up to timeout for running
// invocations to finish. Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, t := range m.tasks {
		close(t.stop)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}

func (m *BackgroundTaskManager) start(t *periodicTask) {
	latency := promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    m.metricsPrefix + t.metricName + "_latency_seconds",
			Help:    "Background loop " + t.metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		})

	timedRun := func() {
		start := time.Now()
		t.run()
		latency.Observe(time.Since(start).Seconds())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timedRun()
		for {
			select {
			case <-time.After(t.interval):
				timedRun()
			case <-t.stop:
				return
			}
		}
	}()
}
