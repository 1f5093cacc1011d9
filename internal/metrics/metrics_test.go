package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestSweepMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetrics(reg)
	job := "reservation-expiry"
	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.AddItems(job, 3, 1, 2)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for name, want := range map[string]float64{
		"sweep_job_success_total":   1,
		"sweep_job_failure_total":   1,
		"sweep_items_expired_total": 3,
		"sweep_items_skipped_total": 1,
		"sweep_items_failed_total":  2,
	} {
		got, err := fetchCounterValue(mfs, name, map[string]string{"job": job})
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	sum, err := fetchHistogramSum(mfs, "sweep_job_duration_seconds", map[string]string{"job": job})
	require.NoError(t, err)
	require.Greater(t, sum, 0.0)
}

func TestSweepMetricsNilSafe(t *testing.T) {
	var m *SweepMetrics
	require.NotPanics(t, func() {
		m.IncSuccess("x")
		m.AddItems("x", 1, 1, 1)
	})
	unregistered := NewSweepMetrics(nil)
	require.NotPanics(t, func() { unregistered.ObserveDuration("", time.Second) })
}

func TestHoldMetricsRecordsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHoldMetrics(reg)
	m.RecordTransition("reservation", "CONFIRMED")
	m.RecordTransition("reservation", "CONFIRMED")
	m.RecordTransition("order", "EXPIRED")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "hold_transitions_total", map[string]string{"aggregate": "reservation", "status": "CONFIRMED"})
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = fetchCounterValue(mfs, "hold_transitions_total", map[string]string{"aggregate": "order", "status": "EXPIRED"})
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
