package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/config"
	"github.com/pscheid92/adrelay/internal/relay"
)

// socketHub is the part of the relay hub the socket endpoint needs.
type socketHub interface {
	Register(identity string, role domain.Role, conn relay.Conn) (*relay.Entry, error)
	Unregister(identity string, id uuid.UUID, reason relay.CloseReason)
	Stats() (domain.ConnectionStats, error)
	Done() <-chan struct{}
}

// Metrics bundles the collectors both servers record into.
type Metrics struct {
	HTTP   *metrics.HTTPMetrics
	Socket *metrics.SocketMetrics
}

// Server is the public endpoint: WebSocket upgrades, health and version.
type Server struct {
	echo   *echo.Echo
	config *config.Config

	hub          socketHub
	limits       *ConnectionLimits
	upgrader     websocket.Upgrader
	origins      *originPolicy
	metrics      Metrics
	healthChecks []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
	started   atomic.Bool
}

func NewServer(cfg *config.Config, hub socketHub, m Metrics, clock clockwork.Clock, healthChecks ...HealthCheck) *Server {
	srv := &Server{
		echo:   newEcho(),
		config: cfg,
		hub:    hub,
		limits: NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: handshakeTimeout,
		},
		origins:      newOriginPolicy(cfg.AppURL, cfg.AllowedOrigins, cfg.IsDevelopment()),
		metrics:      m,
		healthChecks: append([]HealthCheck{hubHealthCheck(hub)}, healthChecks...),
		clock:        clock,
		startTime:    clock.Now(),
	}

	srv.upgrader.CheckOrigin = srv.checkOrigin
	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting public server", "addr", s.config.PublicAddr())
	if err := s.echo.Start(s.config.PublicAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start public server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown public server: %w", err)
	}
	return nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

func hubHealthCheck(hub socketHub) HealthCheck {
	return HealthCheck{
		Name: "relay",
		Check: func(context.Context) error {
			select {
			case <-hub.Done():
				return domain.ErrHubStopped
			default:
				return nil
			}
		},
	}
}
