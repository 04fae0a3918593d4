// Package metrics holds the prometheus collectors of the relay.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "share"

type Metrics struct {
	gatherer prometheus.Gatherer

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	signalsRouted     *prometheus.CounterVec
	signalsDropped    *prometheus.CounterVec
	rosterBroadcasts  prometheus.Counter
	quotaDecisions    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		gatherer: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open signaling connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Signaling connections accepted.",
		}),
		signalsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_routed_total",
			Help:      "Signaling messages delivered to a live target.",
		}, []string{"type"}),
		signalsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Inbound messages that were not routed.",
		}, []string{"reason"}),
		rosterBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_broadcasts_total",
			Help:      "Roster broadcast passes.",
		}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota reservations by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.signalsRouted,
		m.signalsDropped,
		m.rosterBroadcasts,
		m.quotaDecisions,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) SignalRouted(kind string) {
	if m == nil {
		return
	}
	m.signalsRouted.WithLabelValues(kind).Inc()
}

func (m *Metrics) SignalDropped(reason string) {
	if m == nil {
		return
	}
	m.signalsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RosterBroadcast() {
	if m == nil {
		return
	}
	m.rosterBroadcasts.Inc()
}

func (m *Metrics) QuotaDecision(result string) {
	if m == nil {
		return
	}
	m.quotaDecisions.WithLabelValues(result).Inc()
}
