package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func rateLimitedHandler(ratePerSecond float64, burst int, m *metrics.SocketMetrics) echo.HandlerFunc {
	mw := newRateLimiter(ratePerSecond, burst, m)
	return apperrors.Middleware(nil)(mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
}

func callFrom(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	handler := rateLimitedHandler(10, 3, nil)

	for n := 0; n < 3; n++ {
		rec := callFrom(t, handler, testRemoteAddr)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	socketMetrics := metrics.NewSocketMetrics(prometheus.NewRegistry())
	handler := rateLimitedHandler(0.01, 1, socketMetrics)

	rec := callFrom(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = callFrom(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connection rate limit exceeded", resp.Error)
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
	assert.InDelta(t, 1.0, testutil.ToFloat64(socketMetrics.Rejected.WithLabelValues("rate_limit")), 0)
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	handler := rateLimitedHandler(0.01, 1, nil)

	assert.Equal(t, http.StatusOK, callFrom(t, handler, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, callFrom(t, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, callFrom(t, handler, testRemoteAddr).Code)
}
