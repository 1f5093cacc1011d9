package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records sweep job runs and the items each run touched.
type SweepMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	expired  *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep collectors on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_job_duration_seconds",
		Help:    "Duration of sweep jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_job_success_total",
		Help: "Successful sweep job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_job_failure_total",
		Help: "Failed sweep job executions.",
	}, []string{"job"})
	expired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_items_expired_total",
		Help: "Holds moved to EXPIRED by the sweeper.",
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_items_skipped_total",
		Help: "Stale holds that changed state before the sweeper reached them.",
	}, []string{"job"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_items_failed_total",
		Help: "Holds the sweeper failed to expire.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, expired, skipped, failed)
	return &SweepMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		expired:  expired,
		skipped:  skipped,
		failed:   failed,
	}
}

// ObserveDuration records the duration for the named job.
func (m *SweepMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (m *SweepMetrics) IncSuccess(job string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (m *SweepMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddItems records the outcome counts of one job run.
func (m *SweepMetrics) AddItems(job string, expired, skipped, failed int) {
	if m == nil || m.expired == nil {
		return
	}
	label := normalizeLabel(job)
	m.expired.WithLabelValues(label).Add(float64(expired))
	m.skipped.WithLabelValues(label).Add(float64(skipped))
	m.failed.WithLabelValues(label).Add(float64(failed))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
