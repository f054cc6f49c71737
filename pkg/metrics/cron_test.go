package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestCronMetricsRecordsExpirySweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	finished := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	m.ObserveRun("payment-expiry", 300*time.Millisecond, map[string]int64{
		"overdue_scanned": 4,
		"overdue_expired": 3,
		"orphan_scanned":  0,
	}, false, finished)
	m.ObserveRun("payment-expiry", 100*time.Millisecond, map[string]int64{"overdue_expired": 2}, true, finished.Add(time.Minute))

	mfs, err := reg.Gather()
	require.NoError(t, err)

	expired, err := findMetric(mfs, "cron_job_items_total", map[string]string{"job": "payment-expiry", "item": "overdue_expired"})
	require.NoError(t, err)
	require.Equal(t, float64(5), expired.GetCounter().GetValue())

	_, err = findMetric(mfs, "cron_job_items_total", map[string]string{"job": "payment-expiry", "item": "orphan_scanned"})
	require.Error(t, err, "zero counts are not exported")

	success, err := findMetric(mfs, "cron_job_runs_total", map[string]string{"job": "payment-expiry", "outcome": "success"})
	require.NoError(t, err)
	require.Equal(t, float64(1), success.GetCounter().GetValue())
	failure, err := findMetric(mfs, "cron_job_runs_total", map[string]string{"job": "payment-expiry", "outcome": "failure"})
	require.NoError(t, err)
	require.Equal(t, float64(1), failure.GetCounter().GetValue())

	last, err := findMetric(mfs, "cron_job_last_success_timestamp_seconds", map[string]string{"job": "payment-expiry"})
	require.NoError(t, err)
	require.Equal(t, float64(finished.Unix()), last.GetGauge().GetValue())

	sum, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", "payment-expiry")
	require.NoError(t, err)
	require.InDelta(t, 0.4, sum, 0.001)
}

func TestCronMetricsCountsSkippedCycles(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	m.CycleSkipped()
	m.CycleSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	skipped, err := findMetric(mfs, "cron_cycles_skipped_total", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, float64(2), skipped.GetCounter().GetValue())
}

func TestCronMetricsNilSafe(t *testing.T) {
	var m *CronMetrics
	m.ObserveRun("x", time.Second, nil, false, time.Now())
	m.CycleSkipped()
	NewCronMetrics(nil).ObserveRun("x", time.Second, map[string]int64{"a": 1}, true, time.Now())
}
