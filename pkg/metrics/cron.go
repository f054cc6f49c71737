package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronMetrics exports cron worker sweeps: how each run ended and what it touched.
type CronMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

// NewCronMetrics registers the cron metrics. A nil registerer yields a no-op recorder.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Duration of cron job runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_items_total",
			Help: "Rows scanned or changed by cron jobs, e.g. overdue_expired for the payment expiry sweep.",
		}, []string{"job", "item"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each cron job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_cycles_skipped_total",
			Help: "Cycles skipped because another worker held the cron lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.items, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one job run. Item counts are added even when the run failed part way,
// since the rows they describe were already committed.
func (m *CronMetrics) ObserveRun(job string, duration time.Duration, items map[string]int64, failed bool, finishedAt time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(duration.Seconds())
	for item, n := range items {
		if n > 0 {
			m.items.WithLabelValues(job, normalizeLabel(item)).Add(float64(n))
		}
	}
	if failed {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

// CycleSkipped counts a cycle that found the lock held elsewhere.
func (m *CronMetrics) CycleSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
