// Package metrics exposes Prometheus counters and gauges for the
// speed-daemon server, grounded on the retrieval pack's own use of
// github.com/prometheus/client_golang for long-running service
// instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter and gauge the server maintains. A nil
// *Metrics is valid for every recording method, which is then a no-op,
// so callers never need to check whether metrics are enabled. Handler
// needs a non-nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsTotal  *prometheus.CounterVec
	ConnectionsActive *prometheus.GaugeVec
	TicketsEmitted    prometheus.Counter
	PendingTickets    prometheus.Gauge
	ProtocolErrors    *prometheus.CounterVec
	PlatesObserved    prometheus.Counter
}

// New builds a fresh registry and the full metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedd_connections_total",
			Help: "Total TCP connections accepted, by eventual role.",
		}, []string{"role"}),
		ConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "speedd_connections_active",
			Help: "Currently open connections, by role.",
		}, []string{"role"}),
		TicketsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedd_tickets_emitted_total",
			Help: "Tickets emitted by the ticketing engine.",
		}),
		PendingTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "speedd_pending_tickets",
			Help: "Tickets waiting for a dispatcher to cover their road.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "speedd_protocol_errors_total",
			Help: "Connections closed due to a protocol error, by reason.",
		}, []string{"reason"}),
		PlatesObserved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "speedd_plates_observed_total",
			Help: "Plate observations ingested by the ticketing engine.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.TicketsEmitted,
		m.PendingTickets,
		m.ProtocolErrors,
		m.PlatesObserved,
	)

	return m
}

// Handler returns the HTTP handler serving this registry's /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records a newly accepted connection that has just
// identified as role ("camera" or "dispatcher").
func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.ConnectionsTotal.WithLabelValues(role).Inc()
	m.ConnectionsActive.WithLabelValues(role).Inc()
}

// ConnectionClosed records a connection of the given role going away.
func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(role).Dec()
}

// TicketEmitted records one ticket leaving the engine.
func (m *Metrics) TicketEmitted() {
	if m == nil {
		return
	}
	m.TicketsEmitted.Inc()
}

// SetPendingTickets reports the current pending-queue depth.
func (m *Metrics) SetPendingTickets(n int) {
	if m == nil {
		return
	}
	m.PendingTickets.Set(float64(n))
}

// ProtocolError records a connection torn down for the given reason.
func (m *Metrics) ProtocolError(reason string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(reason).Inc()
}

// PlateObserved records one ingested Plate message.
func (m *Metrics) PlateObserved() {
	if m == nil {
		return
	}
	m.PlatesObserved.Inc()
}
