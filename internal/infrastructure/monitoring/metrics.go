package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/AgentOS/devipc/internal/ipc/errno"
)

const namespace = "devipc"

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// IPC operation metrics
	OpsTotal   *prometheus.CounterVec
	OpBytes    *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec

	// Handle metrics
	HandlesOpen prometheus.Gauge

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds running totals for the JSON stats endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalDuration float64 `json:"total_duration_seconds"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics set with Go runtime and process collectors
// already registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
			[]string{"method", "path"},
		),

		OpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "IPC operations by kind and errno result",
			},
			[]string{"op", "result"},
		),
		OpBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_bytes_total",
				Help:      "Bytes moved by successful IPC operations",
			},
			[]string{"op"},
		),
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "IPC operation latency including time spent blocked",
				Buckets:   []float64{.00001, .0001, .001, .01, .1, 1, 10, 60},
			},
			[]string{"op"},
		),

		HandlesOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_open",
				Help:      "Endpoint handles held by the daemon",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the private registry so extra collectors can be added.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Register adds a collector to the registry.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordOp records one IPC operation. The result label is "OK" on success
// and the errno name otherwise.
func (m *Metrics) RecordOp(op string, n int, err error, duration time.Duration) {
	result := "OK"
	if err != nil {
		result = errno.Name(err)
	} else if n > 0 {
		m.OpBytes.WithLabelValues(op).Add(float64(n))
	}
	m.OpsTotal.WithLabelValues(op, result).Inc()
	m.OpDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetHandlesOpen sets the number of daemon-held handles.
func (m *Metrics) SetHandlesOpen(count int) {
	m.HandlesOpen.Set(float64(count))
}

// Snapshot returns running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
