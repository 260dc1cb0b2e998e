package metrics

import "github.com/prometheus/client_golang/prometheus"

// SocketMetrics tracks the public WebSocket endpoint before a connection reaches the hub.
type SocketMetrics struct {
	Rejected      *prometheus.CounterVec
	UpgradeErrors prometheus.Counter
}

// NewSocketMetrics creates and registers socket endpoint metrics on the given registry.
func NewSocketMetrics(reg prometheus.Registerer) *SocketMetrics {
	m := &SocketMetrics{
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_total",
			Help:      "WebSocket connection attempts refused before upgrade, by reason.",
		}, []string{"reason"}),
		UpgradeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "upgrade_errors_total",
			Help:      "Total number of failed WebSocket upgrades.",
		}),
	}

	reg.MustRegister(m.Rejected, m.UpgradeErrors)
	return m
}

// RecordRejection counts a refused connection attempt.
func (m *SocketMetrics) RecordRejection(reason string) {
	m.Rejected.WithLabelValues(reason).Inc()
}
