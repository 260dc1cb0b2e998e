package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/adrelay/internal/platform/correlation"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlation.Middleware())
	s.echo.Use(setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.metrics.HTTP.Middleware("public"))
	s.echo.Use(apperrors.Middleware(s.metrics.HTTP.ErrorsTotal))

	s.registerHealthRoutes()

	connectRate := newRateLimiter(s.config.ConnectRatePerSecond, s.config.ConnectBurst, s.metrics.Socket)
	s.echo.GET("/ws", s.handleSocket, connectRate)
}

func (s *InternalServer) registerRoutes() {
	s.echo.Use(correlation.Middleware())
	s.echo.Use(setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.httpMetrics.Middleware("internal"))
	s.echo.Use(apperrors.Middleware(s.httpMetrics.ErrorsTotal))
	s.echo.Use(internalNetworkOnly(s.config.InternalAllowPrivate))
	s.echo.Use(middleware.BodyLimit(maxTriggerBody))

	s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))

	internal := s.echo.Group("/internal")
	internal.POST("/notify-reviewers", s.handleNotifyReviewers)
	internal.POST("/notify-submitter", s.handleNotifySubmitter)
	internal.POST("/send-notification", s.handleSendNotification)
	internal.GET("/stats", s.handleStats)
}

// quietRoutes are polled by orchestrators and scrapers and never logged.
var quietRoutes = map[string]bool{
	"/metrics":        true,
	"/health/startup": true,
	"/health/live":    true,
	"/health/ready":   true,
}

func setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return quietRoutes[c.Path()]
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
