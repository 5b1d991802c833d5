package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for the turn pipeline.
type ConversationMetrics struct {
	turnsTotal       *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	turnLatency      *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialmatch",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed chat turns",
		}, []string{"phase", "status"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trialmatch",
			Subsystem: "conversation",
			Name:      "phase_transitions_total",
			Help:      "Total phase transitions",
		}, []string{"from", "to"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trialmatch",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency of full turn processing",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"phase"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.transitionsTotal, m.turnLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(phase, status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(phase, status).Inc()
	m.turnLatency.WithLabelValues(phase).Observe(seconds)
}

func (m *ConversationMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}
