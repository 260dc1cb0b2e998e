package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/config"
)

const maxTriggerBody = "64K"

type triggerService interface {
	RefreshReviewerDashboards(ctx context.Context) int
	RefreshSubmitterDashboard(ctx context.Context, identity string) bool
	PushNotification(ctx context.Context, identity string, payload json.RawMessage) bool
	Stats(ctx context.Context) (domain.ConnectionStats, error)
}

// InternalServer serves the trigger routes backend handlers call, plus /metrics.
// It must only be reachable from the host or the private network.
type InternalServer struct {
	echo   *echo.Echo
	config *config.Config

	triggers       triggerService
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
}

func NewInternalServer(cfg *config.Config, triggers triggerService, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler) *InternalServer {
	srv := &InternalServer{
		echo:           newEcho(),
		config:         cfg,
		triggers:       triggers,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest servers.
func (s *InternalServer) Handler() http.Handler {
	return s.echo
}

func (s *InternalServer) Start() error {
	slog.Info("Starting internal trigger server", "addr", s.config.InternalAddr())
	if err := s.echo.Start(s.config.InternalAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start internal server: %w", err)
	}
	return nil
}

func (s *InternalServer) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown internal server: %w", err)
	}
	return nil
}
