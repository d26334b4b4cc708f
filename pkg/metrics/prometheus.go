// Package metrics provides Prometheus metrics for the curator pipeline.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StageProbe     = "probe"
	StageNormalize = "normalize"
)

// Manager manages all Prometheus metrics for a curation run.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Dataset metrics
	candidates      prometheus.Counter
	accepted        *prometheus.CounterVec
	duplicates      prometheus.Counter
	nearDuplicates  prometheus.Counter
	invalid         *prometheus.CounterVec
	normalized      *prometheus.CounterVec
	normalizeErrors prometheus.Counter

	// Stage metrics
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	activeWorkers *prometheus.GaugeVec

	// Queue metrics
	queueSize          *prometheus.GaugeVec
	queueCapacity      *prometheus.GaugeVec
	queueEnqueued      *prometheus.CounterVec
	queueDequeued      *prometheus.CounterVec
	queueEnqueueErrors *prometheus.CounterVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec

	// Run metrics
	runDuration   prometheus.Gauge
	lastRunUnix   prometheus.Gauge
	lastRunImages prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "curator",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.candidates = m.counter("candidates_total", "Candidate files discovered by the scanner")
	m.accepted = m.counterVec("accepted_total", "Unique valid images accepted, by category", "category")
	m.duplicates = m.counter("duplicates_total", "Candidates dropped as exact content duplicates")
	m.nearDuplicates = m.counter("near_duplicates_total", "Accepted images reported as perceptual near duplicates")
	m.invalid = m.counterVec("invalid_total", "Candidates rejected by validation, by reason", "reason")
	m.normalized = m.counterVec("normalized_total", "Images written to the output tree, by split", "split")
	m.normalizeErrors = m.counter("normalize_errors_total", "Accepted images dropped because normalization failed")

	m.stageDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_duration_seconds",
		Help:        "Per-file processing time by stage",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})
	m.stageErrors = m.counterVec("stage_errors_total", "Per-file handler errors by stage", "stage")
	m.activeWorkers = m.gaugeVec("workers_active", "Workers currently running, by stage", "stage")

	m.queueSize = m.gaugeVec("queue_size", "Jobs waiting in a stage queue", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Capacity of a stage queue", "queue")
	m.queueEnqueued = m.counterVec("queue_enqueued_total", "Jobs accepted by a stage queue", "queue")
	m.queueDequeued = m.counterVec("queue_dequeued_total", "Jobs handed to workers by a stage queue", "queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Jobs refused by a stage queue", "queue", "reason")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "type")

	m.runDuration = m.gauge("last_run_duration_seconds", "Wall time of the last run")
	m.lastRunUnix = m.gauge("last_run_timestamp_seconds", "Start time of the last run")
	m.lastRunImages = m.gauge("last_run_images", "Annotation records written by the last run")
}

// RecordCandidate increments the candidate counter.
func RecordCandidate() {
	globalManager.candidates.Inc()
}

// RecordAccepted increments the accepted counter for a category.
func RecordAccepted(category string) {
	globalManager.accepted.WithLabelValues(category).Inc()
}

// RecordDuplicate increments the duplicate counter.
func RecordDuplicate() {
	globalManager.duplicates.Inc()
}

// RecordNearDuplicate increments the near-duplicate counter.
func RecordNearDuplicate() {
	globalManager.nearDuplicates.Inc()
}

// RecordInvalid increments the invalid counter for a reason.
func RecordInvalid(reason string) {
	globalManager.invalid.WithLabelValues(reason).Inc()
}

// RecordNormalized increments the normalized counter for a split.
func RecordNormalized(split string) {
	globalManager.normalized.WithLabelValues(split).Inc()
}

// RecordNormalizeError increments the normalize error counter.
func RecordNormalizeError() {
	globalManager.normalizeErrors.Inc()
}

// RecordStageDuration observes the time one file spent in a stage.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStageError increments the handler error counter of a stage.
func RecordStageError(stage string) {
	globalManager.stageErrors.WithLabelValues(stage).Inc()
}

// UpdateActiveWorkers sets the number of running workers in a stage.
func UpdateActiveWorkers(stage string, count int) {
	globalManager.activeWorkers.WithLabelValues(stage).Set(float64(count))
}

// UpdateQueueSize sets the current size of a queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of a queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter of a queue.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue increments the dequeue counter of a queue.
func RecordQueueDequeue(queue string) {
	globalManager.queueDequeued.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter of a queue.
func RecordQueueEnqueueError(queue, reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue, reason).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordRun records the outcome of a finished run.
func RecordRun(startUnix, durationSeconds float64, images int) {
	globalManager.lastRunUnix.Set(startUnix)
	globalManager.runDuration.Set(durationSeconds)
	globalManager.lastRunImages.Set(float64(images))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile dumps the registry in the text exposition format, suitable
// for the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	return nil
}
