// Package chatmetrics wires the event loop's observable counters into
// Prometheus, grounded on the Gauge/Counter/CounterVec usage pattern in the
// pack's h3ws2h1ws-proxy example.
package chatmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter/gauge the loop and its connections update.
// It is created with its own registry so multiple instances (one per test)
// never collide on prometheus' global default registry.
type Metrics struct {
	registry *prometheus.Registry

	ActiveConnections prometheus.Gauge
	HistorySize       prometheus.Gauge
	FramesDecoded     *prometheus.CounterVec // labels: dialect
	HandshakeFailures prometheus.Counter
	BroadcastFanout   prometheus.Counter
	ConnectionsClosed *prometheus.CounterVec // labels: reason
}

// New builds a Metrics bundle registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notshoutbox_active_connections",
			Help: "Number of connections currently tracked by the event loop.",
		}),
		HistorySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notshoutbox_history_size",
			Help: "Number of messages currently retained in the bounded history.",
		}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notshoutbox_frames_decoded_total",
			Help: "Frames successfully decoded, by dialect.",
		}, []string{"dialect"}),
		HandshakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notshoutbox_handshake_failures_total",
			Help: "Handshake attempts rejected before reaching Ready.",
		}),
		BroadcastFanout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notshoutbox_broadcast_fanout_total",
			Help: "Individual Send calls performed while broadcasting one message.",
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notshoutbox_connections_closed_total",
			Help: "Connections removed from the loop, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.ActiveConnections,
		m.HistorySize,
		m.FramesDecoded,
		m.HandshakeFailures,
		m.BroadcastFanout,
		m.ConnectionsClosed,
	)
	return m
}

// Registry exposes the underlying registry for wiring into promhttp.Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFrameDecoded increments FramesDecoded for the given dialect label.
func (m *Metrics) RecordFrameDecoded(dialect string) {
	m.FramesDecoded.WithLabelValues(dialect).Inc()
}

// RecordConnectionClosed increments ConnectionsClosed for the given reason.
func (m *Metrics) RecordConnectionClosed(reason string) {
	m.ConnectionsClosed.WithLabelValues(reason).Inc()
}
