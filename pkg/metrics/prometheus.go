// Package metrics provides Prometheus metrics for the training pipeline,
// the model registry and the prediction service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline runs
	runsTotal     *prometheus.CounterVec
	runsInFlight  prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	// Data quality
	validationReports *prometheus.CounterVec
	recordsIngested   prometheus.Counter
	recordsDuplicate  prometheus.Counter

	// Registry
	promotions     *prometheus.CounterVec
	modelScore     *prometheus.GaugeVec
	candidateScore *prometheus.GaugeVec

	// Prediction
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	bundleLoads       prometheus.Counter

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	queueDequeued           prometheus.Counter
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "autotrain",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(m.counter("runs_total", "Pipeline runs by terminal status"), []string{"status"})
	m.runsInFlight = auto.NewGauge(m.gauge("runs_in_flight", "Pipeline runs currently executing"))
	m.stageDuration = auto.NewHistogramVec(
		m.histogram("stage_duration_seconds", "Duration of pipeline stages", []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300}),
		[]string{"stage", "outcome"},
	)
	m.stageFailures = auto.NewCounterVec(m.counter("stage_failures_total", "Pipeline stage failures by error kind"), []string{"stage", "kind"})

	m.validationReports = auto.NewCounterVec(m.counter("validation_reports_total", "Validation reports by dataset and status"), []string{"dataset", "status"})
	m.recordsIngested = auto.NewCounter(m.counter("records_ingested_total", "Records accepted by ingestion"))
	m.recordsDuplicate = auto.NewCounter(m.counter("records_duplicate_total", "Duplicate records dropped by ingestion"))

	m.promotions = auto.NewCounterVec(m.counter("promotions_total", "Registry promotion attempts by outcome"), []string{"outcome"})
	m.modelScore = auto.NewGaugeVec(m.gauge("current_model_score", "Evaluation score of the promoted model"), []string{"metric"})
	m.candidateScore = auto.NewGaugeVec(m.gauge("candidate_model_score", "Evaluation score of the latest candidate model"), []string{"metric"})

	m.predictions = auto.NewCounterVec(m.counter("predictions_total", "Prediction requests by outcome"), []string{"outcome"})
	m.predictionLatency = auto.NewHistogram(m.histogram("prediction_latency_milliseconds", "Prediction latency in milliseconds", m.histogramBuckets))
	m.bundleLoads = auto.NewCounter(m.counter("bundle_loads_total", "Model bundles loaded for serving"))

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Run requests waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Capacity of the run queue"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Run requests accepted by the queue"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Run requests rejected by the queue"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Run requests taken by workers"))
	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Workers in the pool"))
	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Workers currently executing a run"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_seconds", "Time a worker spends on one run", []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900}))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Runs that ended in an error"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpErrors = auto.NewCounterVec(m.counter("http_errors_total", "HTTP error responses by endpoint and error type"), []string{"endpoint", "method", "error_type"})
}

// RecordRun counts a finished run by terminal status.
func RecordRun(status string) {
	globalManager.runsTotal.WithLabelValues(status).Inc()
}

// RunStarted increments the in-flight run gauge.
func RunStarted() { globalManager.runsInFlight.Inc() }

// RunFinished decrements the in-flight run gauge.
func RunFinished() { globalManager.runsInFlight.Dec() }

// RecordStageDuration observes a stage duration. outcome is "ok" or "error".
func RecordStageDuration(stage, outcome string, d time.Duration) {
	globalManager.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// RecordStageFailure counts a stage failure by error kind.
func RecordStageFailure(stage, kind string) {
	globalManager.stageFailures.WithLabelValues(stage, kind).Inc()
}

// RecordValidation counts a validation report.
func RecordValidation(dataset, status string) {
	globalManager.validationReports.WithLabelValues(dataset, status).Inc()
}

// RecordIngested adds accepted and duplicate record counts.
func RecordIngested(accepted, duplicates int) {
	globalManager.recordsIngested.Add(float64(accepted))
	globalManager.recordsDuplicate.Add(float64(duplicates))
}

// RecordPromotion counts a promotion attempt: promoted, rejected, conflict
// or rollback.
func RecordPromotion(outcome string) {
	globalManager.promotions.WithLabelValues(outcome).Inc()
}

// SetModelScore sets the score of the promoted model.
func SetModelScore(metric string, score float64) {
	globalManager.modelScore.WithLabelValues(metric).Set(score)
}

// SetCandidateScore sets the score of the latest evaluated candidate.
func SetCandidateScore(metric string, score float64) {
	globalManager.candidateScore.WithLabelValues(metric).Set(score)
}

// RecordPrediction counts a prediction request by outcome.
func RecordPrediction(outcome string) {
	globalManager.predictions.WithLabelValues(outcome).Inc()
}

// RecordPredictionLatency records prediction latency in milliseconds.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordBundleLoad counts a bundle load for serving.
func RecordBundleLoad() { globalManager.bundleLoads.Inc() }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records how long a worker spent on a run.
func RecordWorkerProcessingLatency(d time.Duration) {
	globalManager.workerProcessingLatency.Observe(d.Seconds())
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordHTTPError records an HTTP error response.
func RecordHTTPError(endpoint, method, errorType string) {
	globalManager.httpErrors.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
