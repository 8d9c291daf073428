package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveCommit(false, "committed", 0.2)
	m.ObserveCommit(false, "partial", 0.3)
	m.ObserveCommit(true, "committed", 0.1)
	m.ObserveReschedule("rejected")
	m.ObserveEdit("cancel", "ok")
	m.SetUnbilled(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitsTotal.WithLabelValues("patient", "partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitsTotal.WithLabelValues("block", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reschedulesTotal.WithLabelValues("rejected")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.unbilled))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveCommit(true, "failed", 0.1)
	m.ObserveReschedule("moved")
	m.ObserveEdit("save", "failed")
	m.SetUnbilled(1)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestCommitLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveCommit(false, "committed", 0.2)
	m.ObserveCommit(false, "committed", 0.4)
	m.ObserveCommit(true, "rejected", 0.01)

	families, err := reg.Gather()
	require.NoError(t, err)

	family := findFamily(families, "clinic_booking_commit_latency_seconds")
	require.NotNil(t, family)
	assert.Equal(t, dto.MetricType_HISTOGRAM, family.GetType())
	require.Len(t, family.GetMetric(), 2)

	byKind := map[string]*dto.Histogram{}
	for _, metric := range family.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "kind" {
				byKind[label.GetValue()] = metric.GetHistogram()
			}
		}
	}
	require.Contains(t, byKind, "patient")
	assert.Equal(t, uint64(2), byKind["patient"].GetSampleCount())
	assert.InDelta(t, 0.6, byKind["patient"].GetSampleSum(), 1e-9)
	assert.Equal(t, uint64(1), byKind["block"].GetSampleCount())
}
