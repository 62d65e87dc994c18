package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage engine.
type Metrics struct {
	RaisesTotal      *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RaisesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_raises_total",
			Help: "Total alert raise attempts by kind, severity and result.",
		}, []string{"kind", "severity", "result"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_transitions_total",
			Help: "Total lifecycle transition attempts by target status and result.",
		}, []string{"status", "result"}),
	}

	reg.MustRegister(
		m.RaisesTotal,
		m.TransitionsTotal,
	)

	return m
}

// Hooks returns engine Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnRaise: func(kind Kind, severity Severity, outcome string) {
			sev := "none"
			if severity.Valid() {
				sev = severity.String()
			}
			k := string(kind)
			if !kind.Valid() {
				k = "unknown"
			}
			m.RaisesTotal.WithLabelValues(k, sev, outcome).Inc()
		},
		OnTransition: func(to Status, outcome string) {
			m.TransitionsTotal.WithLabelValues(string(to), outcome).Inc()
		},
	}
}
