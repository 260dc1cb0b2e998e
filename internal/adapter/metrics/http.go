package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route matched, so scanners probing
// random paths cannot grow the series count.
const unmatchedRoute = "unmatched"

// unmeasuredRoutes are scrape, orchestration and long-lived upgrade
// endpoints whose latency says nothing about the relay.
var unmeasuredRoutes = map[string]bool{
	"/metrics":        true,
	"/ws":             true,
	"/health/startup": true,
	"/health/live":    true,
	"/health/ready":   true,
}

// HTTPMetrics tracks the short request/response routes of both servers.
// The server label tells the public and internal listeners apart.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlight        *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics on the given registry.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"server", "method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"server", "method", "route", "status_code"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}, []string{"server"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "Total HTTP errors by error type.",
		}, []string{"type"}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlight, m.ErrorsTotal)
	return m
}

// Middleware records requests handled by the named server.
func (m *HTTPMetrics) Middleware(server string) echo.MiddlewareFunc {
	inFlight := m.InFlight.WithLabelValues(server)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if unmeasuredRoutes[route] {
				return next(c)
			}
			if route == "" {
				route = unmatchedRoute
			}

			inFlight.Inc()
			defer inFlight.Dec()

			var status int
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				labels := []string{server, c.Request().Method, route, strconv.Itoa(status)}
				m.RequestDuration.WithLabelValues(labels...).Observe(v)
				m.RequestsTotal.WithLabelValues(labels...).Inc()
			}))

			err := next(c)
			status = responseStatus(c, err)
			timer.ObserveDuration()
			return err
		}
	}
}

// responseStatus is the status the client will see. An error that reached
// this far uncommitted is rendered later by echo's error handler.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
