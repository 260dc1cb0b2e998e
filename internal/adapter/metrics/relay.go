package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/relay"
)

// RelayMetrics records hub activity. It implements relay.Observer.
type RelayMetrics struct {
	ActiveConnections *prometheus.GaugeVec
	ConnectionsClosed *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	SweepEvictions    prometheus.Counter
}

var _ relay.Observer = (*RelayMetrics)(nil)

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "active_connections",
			Help:      "Number of registered connections by role.",
		}, []string{"role"}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections_closed_total",
			Help:      "Total number of connections removed from the registry, by reason.",
		}, []string{"reason"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Per-target delivery attempts by kind and result.",
		}, []string{"kind", "delivered"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of heartbeat sweeps in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		SweepEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sweep_evictions_total",
			Help:      "Total number of connections evicted by heartbeat sweeps.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.ConnectionsClosed, m.Deliveries, m.SweepDuration, m.SweepEvictions)
	return m
}

func (m *RelayMetrics) ConnectionOpened(role domain.Role) {
	m.ActiveConnections.WithLabelValues(roleLabel(role)).Inc()
}

func (m *RelayMetrics) ConnectionClosed(role domain.Role, reason relay.CloseReason) {
	m.ActiveConnections.WithLabelValues(roleLabel(role)).Dec()
	m.ConnectionsClosed.WithLabelValues(string(reason)).Inc()
}

func (m *RelayMetrics) Delivered(kind relay.DeliveryKind, ok bool) {
	m.Deliveries.WithLabelValues(string(kind), strconv.FormatBool(ok)).Inc()
}

func (m *RelayMetrics) SweepCompleted(duration time.Duration, evicted int) {
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepEvictions.Add(float64(evicted))
}

// roleLabel folds unknown roles into one series; clients pick the role string.
func roleLabel(role domain.Role) string {
	switch role {
	case domain.RoleNone, domain.RoleSubmitter, domain.RoleReviewer, domain.RoleAdmin:
		return role.Label()
	}
	return "other"
}
