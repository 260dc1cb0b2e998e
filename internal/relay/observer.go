package relay

import (
	"time"

	"github.com/pscheid92/adrelay/internal/domain"
)

// CloseReason says why an entry left the registry.
type CloseReason string

const (
	ReasonClosed     CloseReason = "closed"
	ReasonReadError  CloseReason = "read_error"
	ReasonWriteError CloseReason = "write_error"
	ReasonHeartbeat  CloseReason = "heartbeat"
	ReasonPingFailed CloseReason = "ping_failed"
	ReasonSlowClient CloseReason = "slow_client"
	ReasonReplaced   CloseReason = "replaced"
	ReasonShutdown   CloseReason = "shutdown"
)

// DeliveryKind names the delivery primitive used for a send.
type DeliveryKind string

const (
	DeliveryUnicast   DeliveryKind = "unicast"
	DeliveryAll       DeliveryKind = "broadcast_all"
	DeliveryReviewers DeliveryKind = "broadcast_reviewers"
	DeliverySubmitter DeliveryKind = "submitter"
)

// Observer receives hub lifecycle events. Calls happen on the hub goroutine and must not block.
type Observer interface {
	ConnectionOpened(role domain.Role)
	ConnectionClosed(role domain.Role, reason CloseReason)
	Delivered(kind DeliveryKind, ok bool)
	SweepCompleted(duration time.Duration, evicted int)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened(domain.Role) {}
func (nopObserver) ConnectionClosed(domain.Role, CloseReason) {}
func (nopObserver) Delivered(DeliveryKind, bool) {}
func (nopObserver) SweepCompleted(time.Duration, int) {}
