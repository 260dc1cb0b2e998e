package httpserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/adrelay/internal/domain"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
	"github.com/pscheid92/adrelay/internal/relay"
)

const (
	handshakeTimeout = 10 * time.Second
	maxInboundFrame  = 4096
)

// handleSocket upgrades GET /ws?userId=&role= and registers the socket with the hub.
// The handler goroutine becomes the connection's reader until the socket closes.
func (s *Server) handleSocket(c echo.Context) error {
	identity := c.QueryParam("userId")
	if identity == "" {
		s.metrics.Socket.RecordRejection("missing_identity")
		return apperrors.ValidationError("userId query parameter is required")
	}
	role := domain.Role(c.QueryParam("role"))

	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.metrics.Socket.RecordRejection(string(reason))
		if reason == LimitReasonGlobal {
			return apperrors.UnavailableError("connection capacity reached", nil)
		}
		return apperrors.RateLimitedError("too many connections from this address")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.metrics.Socket.UpgradeErrors.Inc()
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "identity", identity, "error", err)
		return nil
	}

	entry, err := s.hub.Register(identity, role, conn)
	if err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to register connection", "identity", identity, "error", err)
		closeMsg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "relay unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, s.clock.Now().Add(time.Second))
		_ = conn.Close()
		return nil
	}

	s.readLoop(conn, entry)
	return nil
}

// readLoop discards inbound frames. It exists to service pongs and detect closure.
func (s *Server) readLoop(conn *websocket.Conn, entry *relay.Entry) {
	conn.SetReadLimit(maxInboundFrame)
	conn.SetPongHandler(func(string) error {
		entry.MarkAlive()
		return nil
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			reason := closeReason(err)
			slog.Debug("Socket reader stopped", "identity", entry.Identity, "connection_id", entry.ID.String(), "reason", reason, "error", err)
			s.hub.Unregister(entry.Identity, entry.ID, reason)
			return
		}
	}
}

func closeReason(err error) relay.CloseReason {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return relay.ReasonClosed
		}
	}
	return relay.ReasonReadError
}
