// Package metrics provides Prometheus metrics for the mathboard ranking service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	resultsApplied   prometheus.Counter
	resultsDuplicate prometheus.Counter
	resultsRejected  *prometheus.CounterVec
	applyLatency     prometheus.Histogram

	// Ranking
	queryLatency   *prometheus.HistogramVec
	topCacheHits   prometheus.Counter
	topCacheMisses prometheus.Counter
	topRefreshes   prometheus.Counter
	playersTotal   prometheus.Gauge

	// Store
	storeShardCount     prometheus.Gauge
	storeRecordsByShard *prometheus.GaugeVec
	storeUpdateLatency  prometheus.Histogram
	storeConflicts      prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Kafka
	kafkaMessages *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mathboard",
		subsystem:        "ranking",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.resultsApplied = m.counter("results_applied_total", "Game results folded into player statistics")
	m.resultsDuplicate = m.counter("results_duplicate_total", "Game results dropped as redelivered duplicates")
	m.resultsRejected = m.counterVec("results_rejected_total", "Game results rejected before or during apply", "reason")
	m.applyLatency = m.histogram("apply_latency_milliseconds", "Latency of a single aggregator apply", m.histogramBuckets)

	m.queryLatency = m.histogramVec("query_latency_milliseconds", "Rank query latency by operation", "operation")
	m.topCacheHits = m.counter("top_cache_hits_total", "Top-N requests served from the cache")
	m.topCacheMisses = m.counter("top_cache_misses_total", "Top-N requests that rebuilt the cache")
	m.topRefreshes = m.counter("top_cache_refreshes_total", "Eager top cache rebuilds")
	m.playersTotal = m.gauge("players_total", "Players with at least one recorded game")

	m.storeShardCount = m.gauge("store_shard_count", "Number of in-memory store shards")
	m.storeRecordsByShard = m.gaugeVec("store_records_per_shard", "Player records per shard", "shard_id")
	m.storeUpdateLatency = m.histogram("store_update_latency_milliseconds", "Store read-modify-write latency", m.histogramBuckets)
	m.storeConflicts = m.counter("store_conflicts_total", "Store updates retried after a write conflict")

	m.queueSize = m.gauge("queue_size", "Current number of queued game results")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Game results enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Game results dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected by a full or closed queue")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently applying a result")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker apply latency", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Results a worker failed to apply")

	m.kafkaMessages = m.counterVec("kafka_messages_total", "Kafka messages consumed by outcome", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Most recent GC pause",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

// Ingestion.

// RecordResultApplied counts a folded result and its apply latency.
func RecordResultApplied(latencyMs float64) {
	globalManager.resultsApplied.Inc()
	globalManager.applyLatency.Observe(latencyMs)
}

// RecordResultDuplicate counts a redelivered result.
func RecordResultDuplicate() {
	globalManager.resultsDuplicate.Inc()
}

// RecordResultRejected counts a result that could not be applied.
func RecordResultRejected(reason string) {
	globalManager.resultsRejected.WithLabelValues(reason).Inc()
}

// Ranking.

// RecordQueryLatency records the latency of a rank query.
func RecordQueryLatency(operation string, latencyMs float64) {
	globalManager.queryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordTopCacheHit counts a top-N request served from the cache.
func RecordTopCacheHit() { globalManager.topCacheHits.Inc() }

// RecordTopCacheMiss counts a top-N request that rebuilt the cache.
func RecordTopCacheMiss() { globalManager.topCacheMisses.Inc() }

// RecordTopRefresh counts an eager cache rebuild.
func RecordTopRefresh() { globalManager.topRefreshes.Inc() }

// UpdatePlayersTotal sets the number of ranked players.
func UpdatePlayersTotal(count int) {
	globalManager.playersTotal.Set(float64(count))
}

// Store.

// UpdateStoreShardCount sets the number of store shards.
func UpdateStoreShardCount(count int) {
	globalManager.storeShardCount.Set(float64(count))
}

// UpdateStoreRecordsPerShard sets the record count for one shard.
func UpdateStoreRecordsPerShard(shardID string, count int) {
	globalManager.storeRecordsByShard.WithLabelValues(shardID).Set(float64(count))
}

// RecordStoreUpdateLatency records a store read-modify-write.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreConflict counts a retried write conflict.
func RecordStoreConflict() { globalManager.storeConflicts.Inc() }

// Queue.

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
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// Workers.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive moves the active worker gauge by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordKafkaMessage counts a consumed message by outcome (enqueued, duplicate, invalid, retried).
func RecordKafkaMessage(outcome string) {
	globalManager.kafkaMessages.WithLabelValues(outcome).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
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
