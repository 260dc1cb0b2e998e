package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter applies a per-IP token bucket to new socket connections.
func newRateLimiter(ratePerSecond float64, burst int, socketMetrics *metrics.SocketMetrics) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if socketMetrics != nil {
				socketMetrics.RecordRejection(string(LimitReasonRate))
			}
			return apperrors.RateLimitedError("connection rate limit exceeded")
		},
	})
}
