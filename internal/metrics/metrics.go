package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FetchAttemptsTotal *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec

	CyclesTotal          *prometheus.CounterVec
	SamplesAppendedTotal *prometheus.CounterVec
	SamplesRejectedTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers against an explicit registry; tests use a fresh
// one to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),

		FetchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fetch_attempts_total",
				Help: "Total number of source fetch attempts by result class",
			},
			[]string{"pair", "result"},
		),

		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_fetch_duration_seconds",
				Help:    "Duration of individual source fetch attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"pair"},
		),

		CyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_cycles_total",
				Help: "Total number of fetch-and-store cycles by outcome",
			},
			[]string{"pair", "outcome"},
		),

		SamplesAppendedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "history_samples_appended_total",
				Help: "Total number of samples appended to the history store",
			},
			[]string{"pair"},
		),

		SamplesRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "history_samples_rejected_total",
				Help: "Total number of samples rejected by the history store",
			},
			[]string{"pair", "reason"},
		),
	}
}
