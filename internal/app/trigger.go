package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/adrelay/internal/domain"
)

// TriggerService builds refresh signals and hands payloads to the relay.
// Every method is best-effort and reports the outcome instead of failing.
type TriggerService struct {
	delivery domain.Delivery
	stats    domain.StatsSource
	clock    clockwork.Clock
}

func NewTriggerService(delivery domain.Delivery, stats domain.StatsSource, clock clockwork.Clock) *TriggerService {
	return &TriggerService{delivery: delivery, stats: stats, clock: clock}
}

// RefreshReviewerDashboards signals every connected reviewer and returns how many were reached.
func (s *TriggerService) RefreshReviewerDashboards(ctx context.Context) int {
	signal := domain.NewRefreshSignal(domain.SignalDashboardRefresh, s.clock.Now())
	delivered := s.delivery.BroadcastToReviewers(signal)

	slog.InfoContext(ctx, "Reviewer dashboards signalled", "delivered", delivered)
	return delivered
}

// RefreshSubmitterDashboard signals one submitter. Connections without the submitter role are skipped.
func (s *TriggerService) RefreshSubmitterDashboard(ctx context.Context, identity string) bool {
	signal := domain.NewRefreshSignal(domain.SignalSubmitterDashboardRefresh, s.clock.Now())
	delivered := s.delivery.NotifySingleSubmitter(identity, signal)

	slog.InfoContext(ctx, "Submitter dashboard signalled", "identity", identity, "delivered", delivered)
	return delivered
}

// PushNotification forwards payload to identity unchanged, whatever the connection's role.
func (s *TriggerService) PushNotification(ctx context.Context, identity string, payload json.RawMessage) bool {
	if len(payload) == 0 {
		slog.WarnContext(ctx, "Empty notification payload", "identity", identity)
		return false
	}
	delivered := s.delivery.SendToIdentity(identity, payload)

	if delivered {
		slog.InfoContext(ctx, "Notification delivered", "identity", identity)
	} else {
		slog.InfoContext(ctx, "Notification not delivered, user offline", "identity", identity)
	}
	return delivered
}

// Stats returns current registry counts.
func (s *TriggerService) Stats(ctx context.Context) (domain.ConnectionStats, error) {
	stats, err := s.stats.Stats()
	if err != nil {
		slog.WarnContext(ctx, "Connection stats unavailable", "error", err)
		return domain.ConnectionStats{}, err
	}
	return stats, nil
}
