// Package metrics provides Prometheus metrics for the trendpipe
// preprocessing core.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultNamespace = "trendpipe"
	defaultSubsystem = "pipeline"
)

// Manager owns all Prometheus instruments for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Data quality - Cleaner
	recordsIngested    prometheus.Counter
	recordsRejected    *prometheus.CounterVec
	metricsDropped     prometheus.Counter
	duplicatesResolved *prometheus.CounterVec

	// Normalizer
	derivedComputed prometheus.Counter
	scalingSkips    prometheus.Counter

	// Merger
	mergeRows   prometheus.Gauge
	absentCells prometheus.Gauge
	emptyMerges prometheus.Counter

	// Filter engine
	filterQueries       prometheus.Counter
	filterQueryDuration prometheus.Histogram
	unknownDimensions   prometheus.Counter

	// Snapshot / rebuild
	rebuildDuration  prometheus.Histogram
	rebuildCount     prometheus.Counter
	snapshotRows     prometheus.Gauge
	snapshotLastUnix prometheus.Gauge

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueues    prometheus.Counter
	queueDequeues    prometheus.Counter
	queueErrors      *prometheus.CounterVec

	// Refresher staging
	stagedRecords prometheus.Gauge

	// Cross-component error tracking
	errorsByComponent *prometheus.CounterVec
}

// NewManager creates a Manager and registers all instruments.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		subsystem:        defaultSubsystem,
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)

	m.recordsIngested = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "records_ingested_total",
		Help: "Raw records handed to the cleaner.",
	})
	m.recordsRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "records_rejected_total",
		Help: "Records dropped by the cleaner, by reason.",
	}, []string{"reason"})
	m.metricsDropped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "metric_values_dropped_total",
		Help: "Individual metric values dropped (e.g. negative values).",
	})
	m.duplicatesResolved = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "duplicates_resolved_total",
		Help: "Duplicate record keys resolved, by policy.",
	}, []string{"policy"})

	m.derivedComputed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "derived_metrics_computed_total",
		Help: "Derived metric values computed by the normalizer.",
	})
	m.scalingSkips = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "scaling_skips_total",
		Help: "Metric values left unscaled due to a degenerate span.",
	})

	m.mergeRows = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "merge_rows",
		Help: "Unified rows produced by the last merge.",
	})
	m.absentCells = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "merge_absent_cells",
		Help: "Absent source-metric cells in the last merged table.",
	})
	m.emptyMerges = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "empty_merges_total",
		Help: "Merges that produced an empty table.",
	})

	m.filterQueries = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "filter_queries_total",
		Help: "Filter queries served.",
	})
	m.filterQueryDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "filter_query_duration_seconds",
		Help:    "Latency of filter queries.",
		Buckets: m.histogramBuckets,
	})
	m.unknownDimensions = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "unknown_filter_dimensions_total",
		Help: "Filter queries rejected for naming an unknown dimension.",
	})

	m.rebuildDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "rebuild_duration_seconds",
		Help:    "Duration of full clean/normalize/merge rebuilds.",
		Buckets: m.histogramBuckets,
	})
	m.rebuildCount = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "rebuilds_total",
		Help: "Completed snapshot rebuilds.",
	})
	m.snapshotRows = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "snapshot_rows",
		Help: "Rows in the current table snapshot.",
	})
	m.snapshotLastUnix = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "snapshot_last_unix",
		Help: "Unix time of the last snapshot replacement.",
	})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "size",
		Help: "Batches currently queued.",
	})
	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "capacity",
		Help: "Configured queue capacity.",
	})
	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "utilization",
		Help: "Queue fill ratio between 0 and 1.",
	})
	m.queueEnqueues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "enqueues_total",
		Help: "Batches accepted by the queue.",
	})
	m.queueDequeues = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "dequeues_total",
		Help: "Batches handed to the refresher.",
	})
	m.queueErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "queue",
		Name: "enqueue_errors_total",
		Help: "Rejected enqueues, by cause.",
	}, []string{"cause"})

	m.stagedRecords = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "staged_records",
		Help: "Records staged for the next rebuild.",
	})

	m.errorsByComponent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "errors_total",
		Help: "Recovered errors, by component and kind.",
	}, []string{"component", "kind"})

	return m
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide Manager, creating it on first use.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// Package-level helpers delegating to the default Manager. These keep call
// sites terse: metrics.RecordRejected("malformed_timestamp").

func RecordIngested(n int) { Default().recordsIngested.Add(float64(n)) }

func RecordRejected(reason string) { Default().recordsRejected.WithLabelValues(reason).Inc() }

func RecordMetricDropped() { Default().metricsDropped.Inc() }

func RecordDuplicateResolved(policy string) {
	Default().duplicatesResolved.WithLabelValues(policy).Inc()
}

func RecordDerivedComputed() { Default().derivedComputed.Inc() }

func RecordScalingSkip() { Default().scalingSkips.Inc() }

func UpdateMergeRows(n int) { Default().mergeRows.Set(float64(n)) }

func UpdateAbsentCells(n int) { Default().absentCells.Set(float64(n)) }

func RecordEmptyMerge() { Default().emptyMerges.Inc() }

func RecordFilterQuery(d time.Duration) {
	Default().filterQueries.Inc()
	Default().filterQueryDuration.Observe(d.Seconds())
}

func RecordUnknownDimension() { Default().unknownDimensions.Inc() }

func ObserveRebuild(d time.Duration) {
	Default().rebuildCount.Inc()
	Default().rebuildDuration.Observe(d.Seconds())
}

func UpdateSnapshot(rows int, at time.Time) {
	Default().snapshotRows.Set(float64(rows))
	Default().snapshotLastUnix.Set(float64(at.Unix()))
}

func UpdateQueueSize(n int) { Default().queueSize.Set(float64(n)) }

func UpdateQueueCapacity(n int) { Default().queueCapacity.Set(float64(n)) }

func UpdateQueueUtilization(u float64) { Default().queueUtilization.Set(u) }

func RecordEnqueue() { Default().queueEnqueues.Inc() }

func RecordDequeue() { Default().queueDequeues.Inc() }

func RecordEnqueueError(cause string) { Default().queueErrors.WithLabelValues(cause).Inc() }

func UpdateStagedRecords(n int) { Default().stagedRecords.Set(float64(n)) }

func RecordErrorByComponent(component, kind string) {
	Default().errorsByComponent.WithLabelValues(component, kind).Inc()
}
