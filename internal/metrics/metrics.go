package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "holly"

// Metrics groups the service's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// AppStoreAttempts counts outbound App Store attempts by endpoint and outcome.
	AppStoreAttempts *prometheus.CounterVec

	// AppStoreRetries counts retries scheduled after a transient failure.
	AppStoreRetries *prometheus.CounterVec

	// Verifications counts verification outcomes by result label.
	Verifications *prometheus.CounterVec

	// HTTPRequests counts served requests by route and status code.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration tracks request latency by route.
	HTTPDuration *prometheus.HistogramVec

	// ChatReplies counts chat replies by kind (answer, refusal, paywall, error).
	ChatReplies *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AppStoreAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appstore",
			Name:      "attempts_total",
			Help:      "App Store Server API attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		AppStoreRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appstore",
			Name:      "retries_total",
			Help:      "App Store Server API retries by endpoint.",
		}, []string{"endpoint"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "verifications_total",
			Help:      "Subscription verifications by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		ChatReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "replies_total",
			Help:      "Chat replies by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AppStoreAttempts,
			m.AppStoreRetries,
			m.Verifications,
			m.HTTPRequests,
			m.HTTPDuration,
			m.ChatReplies,
		)
	}
	return m
}

func (m *Metrics) ObserveAppStoreAttempt(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.AppStoreAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (m *Metrics) ObserveAppStoreRetry(endpoint string) {
	if m == nil {
		return
	}
	m.AppStoreRetries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChatReply(kind string) {
	if m == nil {
		return
	}
	m.ChatReplies.WithLabelValues(kind).Inc()
}
