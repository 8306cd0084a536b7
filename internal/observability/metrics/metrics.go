// Package metrics exposes the Prometheus counters for authentication flows.
// A nil *Recorder is valid and records nothing, so callers never need to guard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
)

// Recorder owns the collectors registered for one process.
type Recorder struct {
	logins      *prometheus.CounterVec
	security    *prometheus.CounterVec
	jwksFetches *prometheus.CounterVec
	httpReqs    *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
	gatherer    prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
// A nil reg uses a fresh registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_logins_total",
			Help: "Completed staff login attempts by driver and result.",
		}, []string{"driver", "result"}),
		security: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_security_events_total",
			Help: "Rejected requests logged as security events, by reason.",
		}, []string{"reason"}),
		jwksFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_jwks_fetches_total",
			Help: "JWKS lookups by result (hit, success, error).",
		}, []string{"result"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}
	reg.MustRegister(r.logins, r.security, r.jwksFetches, r.httpReqs, r.httpLatency)
	return r
}

// RecordLogin counts a login completion.
func (r *Recorder) RecordLogin(driver, result string) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(driver, result).Inc()
}

// RecordSecurityEvent counts a rejected request.
func (r *Recorder) RecordSecurityEvent(reason string) {
	if r == nil {
		return
	}
	r.security.WithLabelValues(reason).Inc()
}

// RecordJWKSFetch counts a key set lookup.
func (r *Recorder) RecordJWKSFetch(result string) {
	if r == nil {
		return
	}
	r.jwksFetches.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts a served request and observes its latency.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpReqs.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for inspection.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}
