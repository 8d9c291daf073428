package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for booking and rescheduling flows.
type SchedulingMetrics struct {
	commitsTotal     *prometheus.CounterVec
	commitLatency    *prometheus.HistogramVec
	reschedulesTotal *prometheus.CounterVec
	editsTotal       *prometheus.CounterVec
	unbilled         prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Booking wizard commits by kind and outcome",
		}, []string{"kind", "outcome"}),
		commitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "commit_latency_seconds",
			Help:      "Latency of booking wizard commits",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "reschedules_total",
			Help:      "Drag and drop reschedules by outcome",
		}, []string{"outcome"}),
		editsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "calendar",
			Name:      "edits_total",
			Help:      "Appointment editor saves and cancels by outcome",
		}, []string{"action", "outcome"}),
		unbilled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "unbilled_appointments",
			Help:      "Appointments without a linked transaction at the last reconcile scan",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commitsTotal, m.commitLatency, m.reschedulesTotal, m.editsTotal, m.unbilled)
	return m
}

func kindLabel(block bool) string {
	if block {
		return "block"
	}
	return "patient"
}

// ObserveCommit records a wizard commit. outcome is one of committed, partial, rejected, failed,
// retried or retry_failed.
func (m *SchedulingMetrics) ObserveCommit(block bool, outcome string, seconds float64) {
	if m == nil {
		return
	}
	kind := kindLabel(block)
	m.commitsTotal.WithLabelValues(kind, outcome).Inc()
	m.commitLatency.WithLabelValues(kind).Observe(seconds)
}

// ObserveReschedule records a drop. outcome is one of moved, unchanged, rejected, failed.
func (m *SchedulingMetrics) ObserveReschedule(outcome string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveEdit(action, outcome string) {
	if m == nil {
		return
	}
	m.editsTotal.WithLabelValues(action, outcome).Inc()
}

func (m *SchedulingMetrics) SetUnbilled(n int) {
	if m == nil {
		return
	}
	m.unbilled.Set(float64(n))
}
