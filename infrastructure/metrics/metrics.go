// Package metrics provides Prometheus metrics collection
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lodestone-core/lodestone/infrastructure/runtime"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Instance supervisor metrics
	InstancesByState   *prometheus.GaugeVec
	InstanceStateTrans *prometheus.CounterVec

	// Macro executor metrics
	MacrosActive    prometheus.Gauge
	MacroExitsTotal *prometheus.CounterVec

	// Event fabric metrics
	EventsBroadcastTotal *prometheus.CounterVec
	EventBusLaggedTotal  prometheus.Counter
	EventPersistFailures prometheus.Counter

	// Database metrics
	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP metrics
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Error metrics
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors",
			},
			[]string{"service", "type", "operation"},
		),

		// Instance supervisor metrics
		InstancesByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lodestone_instances_by_state",
				Help: "Number of managed instances currently in each lifecycle state",
			},
			[]string{"state", "kind"},
		),
		InstanceStateTrans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lodestone_instance_state_transitions_total",
				Help: "Total number of instance state transitions",
			},
			[]string{"from", "to"},
		),

		// Macro executor metrics
		MacrosActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lodestone_macros_active",
				Help: "Number of macro workers currently running",
			},
		),
		MacroExitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lodestone_macro_exits_total",
				Help: "Total number of macro executions by exit status",
			},
			[]string{"status"},
		),

		// Event fabric metrics
		EventsBroadcastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lodestone_events_broadcast_total",
				Help: "Total number of events sent on the broadcast bus",
			},
			[]string{"kind"},
		),
		EventBusLaggedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lodestone_event_bus_lagged_total",
				Help: "Total number of Lagged signals delivered to slow subscribers",
			},
		),
		EventPersistFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lodestone_event_persist_failures_total",
				Help: "Total number of event persistence insert failures",
			},
		),

		// Database metrics
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "database_connections_open",
				Help: "Current number of open database connections",
			},
		),

		// Service health
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "service_info",
				Help: "Service information",
			},
			[]string{"service", "version", "environment"},
		),
	}

	// Register all collectors
	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.InstancesByState,
			m.InstanceStateTrans,
			m.MacrosActive,
			m.MacroExitsTotal,
			m.EventsBroadcastTotal,
			m.EventBusLaggedTotal,
			m.EventPersistFailures,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	// Set service info
	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordStateTransition records an instance moving from one lifecycle state to another.
func (m *Metrics) RecordStateTransition(from, to string) {
	m.InstanceStateTrans.WithLabelValues(from, to).Inc()
}

// SetInstancesByState replaces the instance-count gauge for a given kind/state pair.
func (m *Metrics) SetInstancesByState(kind, state string, count int) {
	m.InstancesByState.WithLabelValues(state, kind).Set(float64(count))
}

// RecordMacroExit records a completed macro execution by its exit status.
func (m *Metrics) RecordMacroExit(status string) {
	m.MacroExitsTotal.WithLabelValues(status).Inc()
}

// SetMacrosActive sets the number of currently running macro workers.
func (m *Metrics) SetMacrosActive(n int) {
	m.MacrosActive.Set(float64(n))
}

// RecordEventBroadcast records an event sent on the broadcast bus.
func (m *Metrics) RecordEventBroadcast(kind string) {
	m.EventsBroadcastTotal.WithLabelValues(kind).Inc()
}

// RecordEventBusLagged records a Lagged signal delivered to a subscriber that fell behind.
func (m *Metrics) RecordEventBusLagged() {
	m.EventBusLaggedTotal.Inc()
}

// RecordEventPersistFailure records a failed event-persistence insert.
func (m *Metrics) RecordEventPersistFailure() {
	m.EventPersistFailures.Inc()
}

// RecordDatabaseQuery records a database query
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections sets the number of open database connections
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight requests counter
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight requests counter
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}

// Helper functions

func getEnvironment() string {
	return string(runtime.Env())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
