// Package metrics provides Prometheus metrics for the paycast service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values used by callers.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"

	SplitTrain = "train"
	SplitVal   = "val"
)

// Training runs last minutes, not milliseconds.
var trainingBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer
	auto             promauto.Factory

	// Prediction
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	predictionErrors  *prometheus.CounterVec

	// Training and the served bundle
	trainingRuns     *prometheus.CounterVec
	trainingDuration prometheus.Histogram
	trainingEpochs   prometheus.Counter
	trainingLoss     *prometheus.GaugeVec
	bundleSwaps      prometheus.Counter
	bundleLoaded     prometheus.Gauge
	modelQuality     *prometheus.GaugeVec

	// History store
	historyAppends      prometheus.Counter
	historyEntities     prometheus.Gauge
	historyRecords      prometheus.Gauge
	historyShardRecords *prometheus.GaugeVec
	historyQueryLatency prometheus.Histogram

	// Settlement ingestion
	settlementsAccepted  prometheus.Counter
	settlementsDuplicate prometheus.Counter

	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueue           prometheus.Counter
	queueDequeue           prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	workerActive            prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "paycast",
		subsystem:        "service",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.auto = promauto.With(m.registry)
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return m.auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return m.auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return m.auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return m.auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.predictions = m.counterVec("predictions_total", "Predictions served by risk level", "risk_level")
	m.predictionLatency = m.histogram("prediction_latency_milliseconds", "Latency of a single invoice prediction", nil)
	m.predictionErrors = m.counterVec("prediction_errors_total", "Failed predictions by kind", "kind")

	m.trainingRuns = m.counterVec("training_runs_total", "Training runs by outcome", "outcome")
	m.trainingDuration = m.histogram("training_duration_seconds", "Wall time of a training run", trainingBuckets)
	m.trainingEpochs = m.counter("training_epochs_total", "Training epochs completed")
	m.trainingLoss = m.gaugeVec("training_loss", "Loss of the last completed epoch", "split")
	m.bundleSwaps = m.counter("bundle_swaps_total", "Model bundles installed for serving")
	m.bundleLoaded = m.gauge("bundle_loaded", "1 when a model bundle is being served")
	m.modelQuality = m.gaugeVec("model_quality", "Held-out quality of the served model", "metric")

	m.historyAppends = m.counter("history_appends_total", "Payment events appended to the history store")
	m.historyEntities = m.gauge("history_entities", "Entities with at least one payment event")
	m.historyRecords = m.gauge("history_records", "Payment events held across all shards")
	m.historyShardRecords = m.gaugeVec("history_shard_records", "Payment events per shard", "shard_id")
	m.historyQueryLatency = m.histogram("history_query_latency_milliseconds", "History read latency", nil)

	m.settlementsAccepted = m.counter("settlements_accepted_total", "Settlements accepted for ingestion")
	m.settlementsDuplicate = m.counter("settlements_duplicate_total", "Settlements dropped as duplicates")

	m.queueSize = m.gauge("queue_size", "Current size of the settlement queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum settlement queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Messages enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Messages dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rejected enqueue attempts")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", nil)

	m.workerActive = m.gauge("worker_active_count", "Number of running settlement workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average settlements processed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", nil)
	m.workerErrors = m.counter("worker_errors_total", "Settlements the workers failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Prediction metrics.

// RecordPrediction counts a served prediction and its latency.
func RecordPrediction(riskLevel string, latencyMs float64) {
	globalManager.predictions.WithLabelValues(riskLevel).Inc()
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordPredictionError counts a failed prediction by kind.
func RecordPredictionError(kind string) {
	globalManager.predictionErrors.WithLabelValues(kind).Inc()
}

// Training metrics.

// RecordTrainingRun records the outcome and wall time of a training run.
func RecordTrainingRun(outcome string, seconds float64) {
	globalManager.trainingRuns.WithLabelValues(outcome).Inc()
	globalManager.trainingDuration.Observe(seconds)
}

// RecordTrainingEpoch records the losses of a completed epoch.
func RecordTrainingEpoch(trainLoss, valLoss float64) {
	globalManager.trainingEpochs.Inc()
	globalManager.trainingLoss.WithLabelValues(SplitTrain).Set(trainLoss)
	globalManager.trainingLoss.WithLabelValues(SplitVal).Set(valLoss)
}

// RecordBundleSwap counts a bundle installation.
func RecordBundleSwap() {
	globalManager.bundleSwaps.Inc()
}

// UpdateBundleLoaded sets whether a bundle is being served.
func UpdateBundleLoaded(loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	globalManager.bundleLoaded.Set(v)
}

// UpdateModelQuality publishes the served model's held-out metrics.
func UpdateModelQuality(mae, rmse, r2 float64) {
	globalManager.modelQuality.WithLabelValues("mae").Set(mae)
	globalManager.modelQuality.WithLabelValues("rmse").Set(rmse)
	globalManager.modelQuality.WithLabelValues("r2").Set(r2)
}

// History store metrics.

// RecordHistoryAppend counts appended payment events.
func RecordHistoryAppend(n int) {
	globalManager.historyAppends.Add(float64(n))
}

// UpdateHistoryEntities sets the number of tracked entities.
func UpdateHistoryEntities(n int) {
	globalManager.historyEntities.Set(float64(n))
}

// UpdateHistoryRecords sets the number of stored payment events.
func UpdateHistoryRecords(n int) {
	globalManager.historyRecords.Set(float64(n))
}

// UpdateHistoryShardRecords sets the number of events held by one shard.
func UpdateHistoryShardRecords(shardID string, n int) {
	globalManager.historyShardRecords.WithLabelValues(shardID).Set(float64(n))
}

// RecordHistoryQueryLatency records a history read.
func RecordHistoryQueryLatency(latencyMs float64) {
	globalManager.historyQueryLatency.Observe(latencyMs)
}

// Settlement metrics.

// RecordSettlementAccepted counts a settlement handed to the queue.
func RecordSettlementAccepted() {
	globalManager.settlementsAccepted.Inc()
}

// RecordSettlementDuplicate counts a settlement dropped by the deduper.
func RecordSettlementDuplicate() {
	globalManager.settlementsDuplicate.Inc()
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeue.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker metrics.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActive.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average processing rate.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
