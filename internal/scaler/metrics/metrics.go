package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/tidelineproject/tideline/internal/common/util"
	"github.com/tidelineproject/tideline/internal/scaler/repository"
)

const MetricPrefix = "tideline_"

var (
	dispatchedJobsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricPrefix + "dispatched_jobs",
			Help: "Number of jobs dispatched to a backend",
		},
		[]string{"namespace"},
	)

	transientFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricPrefix + "dispatch_transient_failures",
			Help: "Number of dispatches left queued after a transient backend failure",
		},
		[]string{"namespace"},
	)

	fatalFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricPrefix + "dispatch_fatal_failures",
			Help: "Number of jobs errored after a fatal backend rejection",
		},
		[]string{"namespace"},
	)

	namespaceBansCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricPrefix + "namespace_bans",
			Help: "Number of times a namespace was quarantined after a data integrity error",
		},
		[]string{"namespace"},
	)

	relaxedLoopsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: MetricPrefix + "relaxed_loops",
			Help: "Number of scale loops that relaxed the per user cap for lack of competing work",
		},
	)

	inconsistenciesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricPrefix + "config_inconsistencies",
			Help: "Number of queued jobs flagged as inconsistent with the current settings",
		},
		[]string{"namespace"},
	)

	scaleLoopDurationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    MetricPrefix + "scale_loop_duration_seconds",
			Help:    "Time spent scanning and dispatching in one scale loop",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

func RecordDispatched(namespace string) {
	dispatchedJobsCounter.WithLabelValues(namespace).Inc()
}

func RecordDispatchTransient(namespace string) {
	transientFailuresCounter.WithLabelValues(namespace).Inc()
}

func RecordDispatchFatal(namespace string) {
	fatalFailuresCounter.WithLabelValues(namespace).Inc()
}

func RecordNamespaceBanned(namespace string) {
	namespaceBansCounter.WithLabelValues(namespace).Inc()
}

func RecordRelaxedLoop() {
	relaxedLoopsCounter.Inc()
}

func RecordInconsistency(namespace string) {
	inconsistenciesCounter.WithLabelValues(namespace).Inc()
}

func RecordScaleLoopDuration(seconds float64) {
	scaleLoopDurationHistogram.Observe(seconds)
}

func ExposeSchedulingMetrics(streams repository.DeadlineStreamRepository) *StreamInfoCollector {
	collector := &StreamInfoCollector{
		streams: streams,
		clock:   &util.UTCClock{},
	}
	prometheus.MustRegister(collector)
	return collector
}

// StreamInfoCollector reads stream gauges at scrape time instead of keeping
// counters in step with every mutation.
type StreamInfoCollector struct {
	streams repository.DeadlineStreamRepository
	clock   util.Clock
}

var streamDepthDesc = prometheus.NewDesc(
	MetricPrefix+"stream_depth",
	"Number of queued jobs in a deadline stream",
	[]string{"namespace"},
	nil,
)

var streamSlackDesc = prometheus.NewDesc(
	MetricPrefix+"stream_deadline_slack_seconds",
	"Seconds until the earliest queued deadline, negative once overdue",
	[]string{"namespace"},
	nil,
)

func (c *StreamInfoCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- streamDepthDesc
	desc <- streamSlackDesc
}

func (c *StreamInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	namespaces, err := c.streams.Namespaces()
	if err != nil {
		log.Errorf("Error while listing namespaces for metrics %s", err)
		recordInvalidMetrics(metrics, err)
		return
	}

	now := c.clock.Now()
	for _, namespace := range namespaces {
		depth, err := c.streams.Depth(namespace)
		if err != nil {
			log.Errorf("Error while reading depth of stream %s for metrics %s", namespace, err)
			recordInvalidMetrics(metrics, err)
			return
		}
		metrics <- prometheus.MustNewConstMetric(streamDepthDesc, prometheus.GaugeValue, float64(depth), namespace)

		earliest, ok, err := c.streams.EarliestDeadline(namespace)
		if err != nil {
			log.Errorf("Error while reading head of stream %s for metrics %s", namespace, err)
			recordInvalidMetrics(metrics, err)
			return
		}
		if ok {
			metrics <- prometheus.MustNewConstMetric(
				streamSlackDesc, prometheus.GaugeValue, earliest.Sub(now).Seconds(), namespace)
		}
	}
}

func recordInvalidMetrics(metrics chan<- prometheus.Metric, err error) {
	metrics <- prometheus.NewInvalidMetric(streamDepthDesc, err)
	metrics <- prometheus.NewInvalidMetric(streamSlackDesc, err)
}
