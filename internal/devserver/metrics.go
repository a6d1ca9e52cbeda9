package devserver

import (
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsCreated   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	activeJobs    prometheus.Gauge
	wsConnections prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		jobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "seo_stub_jobs_created_total",
			Help: "The total number of analysis jobs created",
		}),
		jobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seo_stub_jobs_finished_total",
			Help: "The total number of analysis jobs that reached a terminal status",
		}, []string{"status"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seo_stub_active_jobs",
			Help: "The number of analysis jobs not yet finished",
		}),
		wsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seo_stub_websocket_connections",
			Help: "The number of open progress websockets",
		}),
	}
}

func (m *metrics) finished(status analysis.JobStatus) {
	m.jobsFinished.WithLabelValues(string(status)).Inc()
	m.activeJobs.Dec()
}
