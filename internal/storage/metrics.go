package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snaplog_kv_read_duration_seconds",
			Help:    "Duration of key-value point reads in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		},
	)

	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snaplog_kv_write_duration_seconds",
			Help:    "Duration of single key-value writes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		},
	)

	BatchCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snaplog_kv_batch_commit_duration_seconds",
			Help:    "Duration of atomic batch commits in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		},
	)

	BatchBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snaplog_kv_batch_bytes_total",
			Help: "Total number of bytes committed through batches.",
		},
	)
)

// RegisterMetrics registers all metrics collectors with the given prometheus registerer.
func RegisterMetrics(registerer prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		ReadDuration,
		WriteDuration,
		BatchCommitDuration,
		BatchBytes,
	}
	for _, metric := range metrics {
		if err := registerer.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// PrometheusMetrics is a MetricsHook feeding the package collectors.
type PrometheusMetrics struct{}

var _ MetricsHook = PrometheusMetrics{}

func (PrometheusMetrics) ObserveRead(elapsed time.Duration, _ int) {
	ReadDuration.Observe(elapsed.Seconds())
}

func (PrometheusMetrics) ObserveWrite(elapsed time.Duration, _ int) {
	WriteDuration.Observe(elapsed.Seconds())
}

func (PrometheusMetrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	BatchCommitDuration.Observe(elapsed.Seconds())
	BatchBytes.Add(float64(bytes))
}
