// Package metrics exposes Prometheus collectors for turn and collaboration
// outcomes. The collaboration engine's Stats() remains the in-process
// source of truth; these collectors mirror it for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors shared by the orchestrator and the
// collaboration engine. A nil *Metrics disables recording.
type Metrics struct {
	TurnsTotal     *prometheus.CounterVec
	SessionsTotal  *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
}

// New registers the collectors with reg (use prometheus.DefaultRegisterer
// for the default registry).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "turns_total",
			Help:      "Processed turns by outcome.",
		}, []string{"outcome"}),
		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Name:      "collab_sessions_total",
			Help:      "Terminal collaboration sessions by status.",
		}, []string{"status"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Name:      "collab_sessions_active",
			Help:      "Collaboration sessions currently running.",
		}),
	}
}

// RecordTurn increments the turn counter; safe on a nil receiver.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordSession increments the session counter; safe on a nil receiver.
func (m *Metrics) RecordSession(status string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(status).Inc()
}

// SessionStarted bumps the active-session gauge; safe on a nil receiver.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionFinished drops the active-session gauge; safe on a nil receiver.
func (m *Metrics) SessionFinished() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
