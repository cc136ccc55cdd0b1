package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookcatalog"

// Metrics holds the Prometheus registry and every instrument the server records.
// Initialize once at server startup; a nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec   // HTTP requests by method, route, status
	RequestDuration *prometheus.HistogramVec // HTTP latency by method, route
	ActiveRequests  prometheus.Gauge         // In-flight requests
	ErrorCounter    *prometheus.CounterVec   // 5xx responses by route

	AuthnOutcomes  *prometheus.CounterVec // Authentication filter outcomes
	AuthzDecisions *prometheus.CounterVec // Policy decisions by policy and result
	LoginAttempts  *prometheus.CounterVec // Login results by kind (user, guest) and result
}

// NewMetrics creates a registry preloaded with the Go and process collectors
// and the service instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests",
		}),
		ErrorCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP 5xx responses",
		}, []string{"route"}),
		AuthnOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authn_outcomes_total",
			Help:      "Authentication filter outcomes",
		}, []string{"outcome"}),
		AuthzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Authorization policy decisions",
		}, []string{"policy", "decision"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by kind and result",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.ActiveRequests,
		m.ErrorCounter,
		m.AuthnOutcomes,
		m.AuthzDecisions,
		m.LoginAttempts,
	)
	return m
}

// Handler returns an HTTP handler that exposes the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Register allows callers to register custom collectors.
func (m *Metrics) Register(c prometheus.Collector) {
	if m == nil || m.registry == nil {
		return
	}
	m.registry.MustRegister(c)
}

// AuthnOutcome counts one authentication filter decision.
func (m *Metrics) AuthnOutcome(outcome string) {
	if m == nil {
		return
	}
	m.AuthnOutcomes.WithLabelValues(outcome).Inc()
}

// AuthzDecision counts one policy evaluation.
func (m *Metrics) AuthzDecision(policy, decision string) {
	if m == nil {
		return
	}
	m.AuthzDecisions.WithLabelValues(policy, decision).Inc()
}

// LoginAttempt counts one login result.
func (m *Metrics) LoginAttempt(kind, result string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(kind, result).Inc()
}

// Middleware records request count, latency, and errors per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		m.ActiveRequests.Inc()
		defer m.ActiveRequests.Dec()

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		if status >= http.StatusInternalServerError {
			m.ErrorCounter.WithLabelValues(route).Inc()
		}
	})
}

// routePattern keeps label cardinality bounded by using the matched chi
// pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
