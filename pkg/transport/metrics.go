package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by the client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec
}

// NewMetrics registers the transport collectors with reg. Passing nil uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_client_requests_total",
			Help: "The total number of HTTP attempts made to the analysis service",
		}, []string{"method", "outcome"}), // outcome: success, http_error, network, timeout, cancelled
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seo_client_request_duration_seconds",
			Help:    "Latency of HTTP attempts to the analysis service",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_client_retries_total",
			Help: "The total number of retried requests",
		}, []string{"method"}),
	}
}

func (m *Metrics) observe(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) incRetry(method string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(method).Inc()
}
