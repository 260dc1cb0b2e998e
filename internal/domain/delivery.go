package domain

// Delivery is the relay's delivery surface as seen by the trigger layer.
// All methods are best-effort: failures are reported as false or a zero count,
// never as errors, so a missed push cannot fail the caller's business operation.
type Delivery interface {
	SendToIdentity(identity string, payload any) bool
	BroadcastToAll(payload any) int
	BroadcastToReviewers(payload any) int
	NotifySingleSubmitter(identity string, payload any) bool
}

// ConnectionStats is a point-in-time view of the registry.
type ConnectionStats struct {
	Connections int `json:"connections"`
	Reviewers   int `json:"reviewers"`
}

// StatsSource reports registry counts.
type StatsSource interface {
	Stats() (ConnectionStats, error)
}
