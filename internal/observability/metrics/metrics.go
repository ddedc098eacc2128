// Package metrics exports predictgrid's Prometheus metrics: a
// CounterVec/GaugeVec/HistogramVec set covering requests, worker credits,
// queue depth, and circuit state, with a Register/Handler split for wiring
// into an HTTP mux.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predictgrid"

// Metrics contains every Prometheus metric the master exports.
type Metrics struct {
	RequestsTotal *prometheus.CounterVec

	WorkersTotal   *prometheus.GaugeVec
	WorkerCredits  *prometheus.GaugeVec
	QueueDepth     *prometheus.GaugeVec
	CircuitState   *prometheus.GaugeVec

	DispatchLatencyMs *prometheus.HistogramVec
	WorkerLatencyMs   *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide singleton metrics instance.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
		defaultMetrics.Register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates a fresh, unregistered Metrics instance.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of predict requests dispatched, by servable/method/status",
			},
			[]string{"servable", "method", "status"},
		),
		WorkersTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_total",
				Help:      "Current number of registered workers per servable/version",
			},
			[]string{"servable", "version"},
		),
		WorkerCredits: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_credits",
				Help:      "Remaining dispatch credit for a worker on a method dispatcher",
			},
			[]string{"servable", "method", "worker_pid"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of jobs awaiting dispatch on a method dispatcher",
			},
			[]string{"servable", "method"},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Per-worker circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"worker_pid"},
		),
		DispatchLatencyMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_ms",
				Help:      "End-to-end latency from PushRequest to job completion, in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"servable", "method"},
		),
		WorkerLatencyMs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_rpc_latency_ms",
				Help:      "gRPC round-trip latency of a single sub-request to a worker, in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"worker_pid"},
		),
	}
}

// Register registers every metric with reg.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.RequestsTotal,
		m.WorkersTotal,
		m.WorkerCredits,
		m.QueueDepth,
		m.CircuitState,
		m.DispatchLatencyMs,
		m.WorkerLatencyMs,
	)
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RequestStatus labels a completed request's outcome.
type RequestStatus string

const (
	RequestStatusOK                 RequestStatus = "ok"
	RequestStatusInvalidInputs      RequestStatus = "invalid_inputs"
	RequestStatusWorkerUnavailable  RequestStatus = "worker_unavailable"
	RequestStatusSystemError        RequestStatus = "system_error"
	RequestStatusFailed             RequestStatus = "failed"
)

// RecordRequest records one completed dispatch with its outcome and latency.
func (m *Metrics) RecordRequest(servable, method string, status RequestStatus, latencyMs float64) {
	m.RequestsTotal.WithLabelValues(servable, method, string(status)).Inc()
	m.DispatchLatencyMs.WithLabelValues(servable, method).Observe(latencyMs)
}

// SetWorkerCount updates the registered-worker gauge for a servable version.
func (m *Metrics) SetWorkerCount(servable, version string, count float64) {
	m.WorkersTotal.WithLabelValues(servable, version).Set(count)
}

// SetQueueDepth updates the pending-job gauge for a method dispatcher.
func (m *Metrics) SetQueueDepth(servable, method string, depth float64) {
	m.QueueDepth.WithLabelValues(servable, method).Set(depth)
}

// SetWorkerCredits updates the remaining-credit gauge for one worker on one
// method dispatcher.
func (m *Metrics) SetWorkerCredits(servable, method, workerPid string, credits float64) {
	m.WorkerCredits.WithLabelValues(servable, method, workerPid).Set(credits)
}

// RecordWorkerLatency records one worker RPC's round-trip latency.
func (m *Metrics) RecordWorkerLatency(workerPid string, latencyMs float64) {
	m.WorkerLatencyMs.WithLabelValues(workerPid).Observe(latencyMs)
}

// CircuitStateValue mirrors gobreaker's three-state model as a gauge value.
type CircuitStateValue float64

const (
	CircuitStateClosed   CircuitStateValue = 0
	CircuitStateHalfOpen CircuitStateValue = 1
	CircuitStateOpen     CircuitStateValue = 2
)

// SetCircuitState updates the circuit breaker gauge for one worker.
func (m *Metrics) SetCircuitState(workerPid string, state CircuitStateValue) {
	m.CircuitState.WithLabelValues(workerPid).Set(float64(state))
}

// RemoveWorkerMetrics drops every per-worker series once a worker is
// removed, so stale label sets don't linger in the registry.
func (m *Metrics) RemoveWorkerMetrics(workerPid string) {
	m.WorkerLatencyMs.DeleteLabelValues(workerPid)
	m.CircuitState.DeleteLabelValues(workerPid)
	m.WorkerCredits.DeletePartialMatch(prometheus.Labels{"worker_pid": workerPid})
}
