// Package metrics defines the Prometheus collectors exported by the daemon.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "benjudge"

// Metrics groups every collector. Create one per registry.
type Metrics struct {
	cacheRequests   *prometheus.CounterVec
	cacheStores     *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	parseFailures   *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	xpAwarded       prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Labels: endpoint (chat, solucao), result (hit, miss)
		cacheRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Fingerprint cache lookups by result",
		}, []string{"endpoint", "result"}),

		cacheStores: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "stores_total",
			Help:      "Responses written to the fingerprint cache",
		}, []string{"endpoint"}),

		upstreamLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Reasoning service call latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider", "flow"}),

		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Failed reasoning service calls",
		}, []string{"provider", "flow"}),

		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "total",
			Help:      "Interpreted review verdicts",
		}, []string{"mode", "code_correct"}),

		parseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verdict",
			Name:      "parse_failures_total",
			Help:      "Upstream responses that could not be interpreted",
		}, []string{"mode"}),

		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Recorded submissions",
		}, []string{"correct", "first_success"}),

		xpAwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "xp_awarded_total",
			Help:      "Experience points granted",
		}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// CacheHit records a cache hit.
func (m *Metrics) CacheHit(endpoint string) {
	m.cacheRequests.WithLabelValues(endpoint, "hit").Inc()
}

// CacheMiss records a cache miss.
func (m *Metrics) CacheMiss(endpoint string) {
	m.cacheRequests.WithLabelValues(endpoint, "miss").Inc()
}

// CacheStore records a cache write.
func (m *Metrics) CacheStore(endpoint string) {
	m.cacheStores.WithLabelValues(endpoint).Inc()
}

// UpstreamCall records one reasoning service call.
func (m *Metrics) UpstreamCall(provider, flow string, took time.Duration, err error) {
	m.upstreamLatency.WithLabelValues(provider, flow).Observe(took.Seconds())
	if err != nil {
		m.upstreamErrors.WithLabelValues(provider, flow).Inc()
	}
}

// Verdict records an interpreted verdict.
func (m *Metrics) Verdict(mode string, codeCorrect bool) {
	m.verdicts.WithLabelValues(mode, strconv.FormatBool(codeCorrect)).Inc()
}

// ParseFailure records an uninterpretable upstream response.
func (m *Metrics) ParseFailure(mode string) {
	m.parseFailures.WithLabelValues(mode).Inc()
}

// Submission records a ledger write.
func (m *Metrics) Submission(correct, firstSuccess bool, xp int) {
	m.submissions.WithLabelValues(strconv.FormatBool(correct), strconv.FormatBool(firstSuccess)).Inc()
	m.xpAwarded.Add(float64(xp))
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route string, code int, took time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(took.Seconds())
}
