package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes Controller lifecycle metrics for deployments
// that scrape rather than poll expvar. It is the domain-stack counterpart to
// ExpvarMetricsRecorder: the same events, pushed through client_golang so a
// Prometheus server (or /metrics endpoint, see cmd/epochsim) can collect them.
type PrometheusRecorder struct {
	EpochsCompleted  prometheus.Counter
	EpochsDiscarded  prometheus.Counter
	PersistQueueSize prometheus.Gauge
	PersistDuration  prometheus.Histogram
}

// NewPrometheusRecorder constructs and registers the Controller metric
// family on reg. Passing a fresh prometheus.NewRegistry() keeps tests
// isolated from the global default registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		EpochsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochcore_epochs_completed_total",
			Help: "Total number of Epochs that reached completion and were persisted successfully.",
		}),
		EpochsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epochcore_epochs_discarded_total",
			Help: "Total number of Epochs discarded via next_epoch, cancel_epoch, or an exceptional DAQ stop.",
		}),
		PersistQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "epochcore_persist_queue_depth",
			Help: "Number of persistence tasks currently queued on the serial persistence worker.",
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "epochcore_persist_duration_seconds",
			Help:    "Wall-clock duration of a single Epoch persistence task.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.EpochsCompleted, r.EpochsDiscarded, r.PersistQueueSize, r.PersistDuration)
	return r
}

// ObservePersist records the duration of one persistence task.
func (r *PrometheusRecorder) ObservePersist(d time.Duration) {
	if r == nil {
		return
	}
	r.PersistDuration.Observe(d.Seconds())
}
