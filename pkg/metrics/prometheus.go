// Package metrics provides Prometheus metrics for the waterfall service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// defaultLatencyBuckets covers sub-millisecond allocations up to slow
// store round trips.
var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // read-only

// Manager manages all Prometheus metrics for the waterfall service.
type Manager struct {
	namespace      string
	subsystem      string
	metricPrefix   string
	httpBuckets    []float64
	latencyBuckets []float64
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Engine metrics
	runs              *prometheus.CounterVec
	runDuration       prometheus.Histogram
	periodsProcessed  prometheus.Counter
	irrNoConvergence  *prometheus.CounterVec
	configRejections  prometheus.Counter
	dataUnavailable   prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheSize         prometheus.Gauge
	projectsTotal     prometheus.Gauge
	recomputeRejected prometheus.Counter

	// Operational health
	queueSize   prometheus.Gauge
	workerCount prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

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

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "landscape",
		subsystem:      "waterfall",
		httpBuckets:    prometheus.DefBuckets,
		latencyBuckets: defaultLatencyBuckets,
		constLabels:    prometheus.Labels{},
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	msBuckets := m.latencyBuckets

	m.runs = m.counterVec("runs_total", "Waterfall runs by outcome (ok, cached, invalid, error)", "status")
	m.runDuration = m.histogram("run_duration_milliseconds", "Time to allocate and summarize one run", msBuckets)
	m.periodsProcessed = m.counter("periods_processed_total", "Cash-flow periods folded by the allocation engine")
	m.irrNoConvergence = m.counterVec("irr_no_convergence_total", "IRR solves that failed to converge", "scope")
	m.configRejections = m.counter("config_rejections_total", "Tier configurations rejected before a run")
	m.dataUnavailable = m.counter("data_unavailable_total", "Runs that substituted placeholders for missing inputs")
	m.cacheHits = m.counter("run_cache_hits_total", "Runs served from the fingerprint cache")
	m.cacheMisses = m.counter("run_cache_misses_total", "Runs that had to be computed")
	m.cacheSize = m.gauge("run_cache_size", "Results held in the fingerprint cache")
	m.projectsTotal = m.gauge("projects_total", "Projects with stored waterfall data")
	m.recomputeRejected = m.counter("recompute_rejected_total", "Recompute requests rejected by queue backpressure")

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.workerCount = m.gauge("worker_count", "Configured recompute workers")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.httpBuckets, "endpoint", "method", "status_code")

	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Store write latency", msBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Store read latency", msBuckets)

	m.queueCapacity = m.gauge("queue_capacity", "Maximum recompute queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Recompute queue fill ratio (0-1)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs dropped because the queue was full or closed")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time jobs spent waiting in the queue", msBuckets)

	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently recomputing")
	m.workerIdleCount = m.gauge("worker_idle_count", "Workers waiting for jobs")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to process one recompute job", msBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Recompute jobs that failed")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", msBuckets, "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds", msBuckets)
}

// RecordRun counts a run by outcome.
func RecordRun(status string) {
	globalManager.runs.WithLabelValues(status).Inc()
}

// RecordRunDuration records run latency in milliseconds.
func RecordRunDuration(latencyMs float64) {
	globalManager.runDuration.Observe(latencyMs)
}

// RecordPeriodsProcessed adds n folded periods.
func RecordPeriodsProcessed(n int) {
	globalManager.periodsProcessed.Add(float64(n))
}

// RecordIRRNoConvergence counts a failed IRR solve for scope (LP, GP, project).
func RecordIRRNoConvergence(scope string) {
	globalManager.irrNoConvergence.WithLabelValues(scope).Inc()
}

// RecordConfigRejection counts a rejected tier configuration.
func RecordConfigRejection() {
	globalManager.configRejections.Inc()
}

// RecordDataUnavailable counts a run that used placeholders.
func RecordDataUnavailable() {
	globalManager.dataUnavailable.Inc()
}

// RecordCacheHit counts a run served from cache.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss counts a run that was computed.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheSize sets the fingerprint cache size.
func UpdateCacheSize(size int64) {
	globalManager.cacheSize.Set(float64(size))
}

// UpdateProjectsTotal sets the number of stored projects.
func UpdateProjectsTotal(count int) {
	globalManager.projectsTotal.Set(float64(count))
}

// RecordRecomputeRejected counts a recompute request refused by backpressure.
func RecordRecomputeRejected() {
	globalManager.recomputeRejected.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRepositoryUpdateLatency records store write latency in milliseconds.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store read latency in milliseconds.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError counts a dropped job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue wait time in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records job processing time in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

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
