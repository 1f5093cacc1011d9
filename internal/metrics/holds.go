package metrics

import "github.com/prometheus/client_golang/prometheus"

// HoldMetrics counts reservation and order state transitions.
type HoldMetrics struct {
	transitions *prometheus.CounterVec
}

func NewHoldMetrics(reg prometheus.Registerer) *HoldMetrics {
	if reg == nil {
		return &HoldMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hold_transitions_total",
		Help: "Reservation and order state transitions by resulting status.",
	}, []string{"aggregate", "status"})
	reg.MustRegister(transitions)
	return &HoldMetrics{transitions: transitions}
}

// RecordTransition satisfies inventory.TransitionRecorder.
func (m *HoldMetrics) RecordTransition(aggregate, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(aggregate), normalizeLabel(status)).Inc()
}
