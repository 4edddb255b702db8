package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the engine and its HTTP surface
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Graph state, refreshed on every conflict listing
	GraphModules     prometheus.Gauge
	GraphEdges       prometheus.Gauge
	ConflictsCurrent *prometheus.GaugeVec

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	StaleCommitsTotal prometheus.Counter

	PlanTransitionsTotal  *prometheus.CounterVec
	RollbackVerdictsTotal *prometheus.CounterVec
	RollbackPointsExpired prometheus.Counter

	otel *OTelMetrics
}

// NewMetrics creates and registers all collectors on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modgraph_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GraphModules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modgraph_graph_modules",
			Help: "Number of modules in the last built graph",
		}),
		GraphEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "modgraph_graph_edges",
			Help: "Number of dependency edges in the last built graph",
		}),
		ConflictsCurrent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modgraph_conflicts",
				Help: "Conflicts found by the last resolve, by type and severity",
			},
			[]string{"type", "severity"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_operations_total",
				Help: "Engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modgraph_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		StaleCommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modgraph_stale_commits_total",
			Help: "Commits rejected because the store revision moved",
		}),
		PlanTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_plan_transitions_total",
				Help: "Propagation plan state transitions",
			},
			[]string{"from", "to"},
		),
		RollbackVerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modgraph_rollback_verdicts_total",
				Help: "Rollback validations by verdict",
			},
			[]string{"valid"},
		),
		RollbackPointsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modgraph_rollback_points_expired_total",
			Help: "Rollback points moved to expired by retention",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GraphModules,
		m.GraphEdges,
		m.ConflictsCurrent,
		m.OperationsTotal,
		m.OperationDuration,
		m.StaleCommitsTotal,
		m.PlanTransitionsTotal,
		m.RollbackVerdictsTotal,
		m.RollbackPointsExpired,
	)
	return m
}

// WithOTel mirrors operation metrics into OpenTelemetry instruments
func (m *Metrics) WithOTel(o *OTelMetrics) *Metrics {
	m.otel = o
	return m
}

// RecordOperation counts one engine operation and its latency. A nil
// receiver records nothing.
func (m *Metrics) RecordOperation(ctx context.Context, operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	if outcome == OutcomeStale {
		m.StaleCommitsTotal.Inc()
	}
	if m.otel != nil {
		m.otel.RecordOperation(ctx, operation, outcome, d)
	}
}

// RecordGraph publishes the size and conflict counts of a resolved graph
func (m *Metrics) RecordGraph(modules, edges int, conflicts map[[2]string]int) {
	if m == nil {
		return
	}
	m.GraphModules.Set(float64(modules))
	m.GraphEdges.Set(float64(edges))
	m.ConflictsCurrent.Reset()
	for k, n := range conflicts {
		m.ConflictsCurrent.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
}

func (m *Metrics) RecordPlanTransition(from, to string) {
	if m == nil {
		return
	}
	m.PlanTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) RecordRollbackVerdict(valid bool) {
	if m == nil {
		return
	}
	m.RollbackVerdictsTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) RecordPointsExpired(n int) {
	if m == nil {
		return
	}
	m.RollbackPointsExpired.Add(float64(n))
}

// Operation outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeStale    = "stale"
	OutcomeError    = "error"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests, labelling them by mux route
// template so path parameters do not explode cardinality
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
