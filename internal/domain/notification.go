package domain

import "time"

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// Notification is the conventional user-facing toast payload.
// The relay never inspects it; callers build it and the client renders it.
type Notification struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Level    Level  `json:"level"`
	DeepLink string `json:"deepLink,omitempty"`
}

// SignalType identifies a dashboard refresh signal.
type SignalType string

const (
	SignalDashboardRefresh          SignalType = "DASHBOARD_REFRESH_REQUESTED"
	SignalSubmitterDashboardRefresh SignalType = "SUBMITTER_DASHBOARD_REFRESH_REQUESTED"
)

// timestampLayout matches what browser clients produce with Date.toISOString().
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// RefreshSignal tells a dashboard to re-fetch its data.
type RefreshSignal struct {
	Type      SignalType `json:"type"`
	Timestamp string     `json:"timestamp"`
}

// NewRefreshSignal builds a signal stamped with now in UTC.
func NewRefreshSignal(signalType SignalType, now time.Time) RefreshSignal {
	return RefreshSignal{
		Type:      signalType,
		Timestamp: now.UTC().Format(timestampLayout),
	}
}
