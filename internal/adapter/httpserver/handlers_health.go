package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/version"
)

const readinessCheckTimeout = 2 * time.Second

// HealthCheck is a named readiness dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type startupResponse struct {
	Status      string                  `json:"status"`
	Connections *domain.ConnectionStats `json:"connections,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

type livenessResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.handleStartup)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

// handleStartup passes once the hub goroutine has answered a command.
// The first success is latched: later calls never touch the hub again.
func (s *Server) handleStartup(c echo.Context) error {
	if s.started.Load() {
		return writeJSON(c, http.StatusOK, startupResponse{Status: "started"})
	}

	stats, err := s.hub.Stats()
	if err != nil {
		return writeJSON(c, http.StatusServiceUnavailable, startupResponse{Status: "starting", Error: err.Error()})
	}

	s.started.Store(true)
	return writeJSON(c, http.StatusOK, startupResponse{Status: "started", Connections: &stats})
}

func (s *Server) handleLiveness(c echo.Context) error {
	return writeJSON(c, http.StatusOK, livenessResponse{
		Status:        "ok",
		UptimeSeconds: s.clock.Since(s.startTime).Seconds(),
	})
}

// handleReadiness runs every check and reports each result, so an operator
// sees all failing dependencies at once.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
	defer cancel()

	response := readinessResponse{Status: "ready", Checks: make(map[string]string, len(s.healthChecks))}
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			response.Status = "unhealthy"
			response.Checks[hc.Name] = err.Error()
			continue
		}
		response.Checks[hc.Name] = "ok"
	}

	if response.Status != "ready" {
		return writeJSON(c, http.StatusServiceUnavailable, response)
	}
	return writeJSON(c, http.StatusOK, response)
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write %s response: %w", c.Path(), err)
	}
	return nil
}
