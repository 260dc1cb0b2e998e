package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/adrelay/internal/adapter/metrics"
	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/config"
	"github.com/pscheid92/adrelay/internal/relay"
	"github.com/stretchr/testify/require"
)

const loopbackAddr = "127.0.0.1:40000"

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "production",
		AppURL:                  "https://ads.example.com",
		Port:                    "8080",
		InternalHost:            "127.0.0.1",
		InternalPort:            "8081",
		HeartbeatInterval:       30 * time.Second,
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     20,
		ConnectRatePerSecond:    100,
		ConnectBurst:            100,
	}
}

func newTestMetrics() Metrics {
	reg := prometheus.NewRegistry()
	return Metrics{
		HTTP:   metrics.NewHTTPMetrics(reg),
		Socket: metrics.NewSocketMetrics(reg),
	}
}

// mockTriggers records trigger calls and returns canned outcomes.
type mockTriggers struct {
	mu            sync.Mutex
	reviewers     int
	submitterOK   bool
	pushOK        bool
	stats         domain.ConnectionStats
	statsErr      error
	submitterIDs  []string
	pushed        map[string]json.RawMessage
	reviewerCalls int
}

func newMockTriggers() *mockTriggers {
	return &mockTriggers{pushed: make(map[string]json.RawMessage)}
}

func (m *mockTriggers) RefreshReviewerDashboards(context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewerCalls++
	return m.reviewers
}

func (m *mockTriggers) RefreshSubmitterDashboard(_ context.Context, identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitterIDs = append(m.submitterIDs, identity)
	return m.submitterOK
}

func (m *mockTriggers) PushNotification(_ context.Context, identity string, payload json.RawMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushed[identity] = payload
	return m.pushOK
}

func (m *mockTriggers) Stats(context.Context) (domain.ConnectionStats, error) {
	return m.stats, m.statsErr
}

func newTestInternalServer(t *testing.T, triggers triggerService) *InternalServer {
	t.Helper()
	return newTestInternalServerWithConfig(t, testConfig(), triggers)
}

func newTestInternalServerWithConfig(t *testing.T, cfg *config.Config, triggers triggerService) *InternalServer {
	t.Helper()
	reg := metrics.NewRegistry()
	return NewInternalServer(cfg, triggers, metrics.NewHTTPMetrics(reg), metrics.Handler(reg))
}

// serve runs one request through the full router.
func serve(handler http.Handler, method, path, body, remoteAddr string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = remoteAddr
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// stubHub satisfies socketHub for handler tests that never upgrade.
type stubHub struct {
	done       chan struct{}
	statsCalls atomic.Int32
	statsErr   error
}

func newStubHub() *stubHub {
	return &stubHub{done: make(chan struct{})}
}

func (h *stubHub) Register(string, domain.Role, relay.Conn) (*relay.Entry, error) {
	return nil, domain.ErrHubStopped
}

func (h *stubHub) Unregister(string, uuid.UUID, relay.CloseReason) {}

func (h *stubHub) Stats() (domain.ConnectionStats, error) {
	h.statsCalls.Add(1)
	if h.statsErr != nil {
		return domain.ConnectionStats{}, h.statsErr
	}
	return domain.ConnectionStats{Connections: 2, Reviewers: 1}, nil
}

func (h *stubHub) Done() <-chan struct{} { return h.done }

func newTestServer(t *testing.T, hub socketHub, cfg *config.Config, checks ...HealthCheck) *Server {
	t.Helper()
	return NewServer(cfg, hub, newTestMetrics(), clockwork.NewFakeClock(), checks...)
}

func newRequest(method, path, remoteAddr string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	return req
}

func record(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
