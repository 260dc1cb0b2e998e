package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/adrelay/internal/platform/correlation"
)

// DefaultHeartbeatInterval is the sweep period. A silent peer is evicted
// between one and two intervals after its last heartbeat reply.
const DefaultHeartbeatInterval = 30 * time.Second

type sweeper interface {
	Sweep() (SweepResult, error)
}

// Monitor periodically asks the hub to run a heartbeat sweep.
type Monitor struct {
	hub      sweeper
	clock    clockwork.Clock
	interval time.Duration
}

func NewMonitor(hub sweeper, clock clockwork.Clock, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Monitor{hub: hub, clock: clock, interval: interval}
}

// Run sweeps on every tick. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("Liveness monitor started", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Liveness monitor stopped")
			return
		case <-ticker.Chan():
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	sweepCtx := correlation.WithID(ctx, correlation.NewID())

	res, err := m.hub.Sweep()
	if err != nil {
		slog.WarnContext(sweepCtx, "Heartbeat sweep failed", "error", err)
		return
	}

	if res.Evicted > 0 {
		slog.InfoContext(sweepCtx, "Heartbeat sweep evicted unresponsive clients", "pinged", res.Pinged, "evicted", res.Evicted)
		return
	}
	slog.DebugContext(sweepCtx, "Heartbeat sweep complete", "pinged", res.Pinged)
}
