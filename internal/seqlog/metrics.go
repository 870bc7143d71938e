package seqlog

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AppendTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplog_append_total",
			Help: "Total number of committed appends.",
		},
	)

	AppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplog_append_failures_total",
			Help: "Total number of appends that failed before or during commit.",
		},
	)

	AppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snaplog_append_duration_seconds",
			Help:    "Duration of appends in seconds, including waiting for the append lock.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 18),
		},
	)
)

// RegisterMetrics registers all metrics collectors with the given prometheus registerer.
func RegisterMetrics(registerer prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		AppendTotal,
		AppendFailures,
		AppendDuration,
	}
	for _, metric := range metrics {
		if err := registerer.Register(metric); err != nil {
			return err
		}
	}
	return nil
}
