package httpserver

import (
	"net/http"
	"strings"
	"testing"

	"github.com/pscheid92/adrelay/internal/domain"
	"github.com/pscheid92/adrelay/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyReviewers(t *testing.T) {
	triggers := newMockTriggers()
	triggers.reviewers = 2
	srv := newTestInternalServer(t, triggers)

	rec := serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", "", loopbackAddr)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"delivered":2}`, rec.Body.String())
	assert.Equal(t, 1, triggers.reviewerCalls)
	assert.NotEmpty(t, rec.Header().Get(correlation.HeaderName))
}

func TestNotifyReviewers_IgnoresBody(t *testing.T) {
	triggers := newMockTriggers()
	srv := newTestInternalServer(t, triggers)

	rec := serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", `not json at all`, loopbackAddr)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"delivered":0}`, rec.Body.String())
}

func TestNotifySubmitter(t *testing.T) {
	tests := []struct {
		name      string
		delivered bool
		want      string
	}{
		{"connected submitter", true, `{"success":true,"delivered":true}`},
		{"offline or wrong role", false, `{"success":true,"delivered":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggers := newMockTriggers()
			triggers.submitterOK = tt.delivered
			srv := newTestInternalServer(t, triggers)

			rec := serve(srv.Handler(), http.MethodPost, "/internal/notify-submitter", `{"userId":"sub1"}`, loopbackAddr)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
			assert.Equal(t, []string{"sub1"}, triggers.submitterIDs)
		})
	}
}

func TestSendNotification_Delivered(t *testing.T) {
	triggers := newMockTriggers()
	triggers.pushOK = true
	srv := newTestInternalServer(t, triggers)

	body := `{"userId":"u2","notification":{"title":"T","message":"M","level":"info"}}`
	rec := serve(srv.Handler(), http.MethodPost, "/internal/send-notification", body, loopbackAddr)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.JSONEq(t, `{"title":"T","message":"M","level":"info"}`, string(triggers.pushed["u2"]))
}

func TestSendNotification_NotConnected(t *testing.T) {
	triggers := newMockTriggers()
	srv := newTestInternalServer(t, triggers)

	body := `{"userId":"u9","notification":{"title":"T"}}`
	rec := serve(srv.Handler(), http.MethodPost, "/internal/send-notification", body, loopbackAddr)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "not_found", resp["type"])
}

func TestTriggerRoutes_RejectMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{"submitter empty body", "/internal/notify-submitter", ""},
		{"submitter invalid json", "/internal/notify-submitter", `{"userId":`},
		{"submitter missing userId", "/internal/notify-submitter", `{}`},
		{"submitter wrong type", "/internal/notify-submitter", `{"userId":42}`},
		{"submitter trailing data", "/internal/notify-submitter", `{"userId":"a"}{"userId":"b"}`},
		{"send invalid json", "/internal/send-notification", `{oops}`},
		{"send missing userId", "/internal/send-notification", `{"notification":{"title":"T"}}`},
		{"send missing notification", "/internal/send-notification", `{"userId":"u1"}`},
		{"send null notification", "/internal/send-notification", `{"userId":"u1","notification":null}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggers := newMockTriggers()
			triggers.submitterOK = true
			triggers.pushOK = true
			srv := newTestInternalServer(t, triggers)

			rec := serve(srv.Handler(), http.MethodPost, tt.path, tt.body, loopbackAddr)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody(t, rec)
			assert.Equal(t, false, resp["success"])
			assert.Equal(t, "validation", resp["type"])
			assert.Empty(t, triggers.submitterIDs)
			assert.Empty(t, triggers.pushed)
		})
	}
}

func TestSendNotification_BodyTooLarge(t *testing.T) {
	triggers := newMockTriggers()
	srv := newTestInternalServer(t, triggers)

	body := `{"userId":"u1","notification":{"message":"` + strings.Repeat("x", 70*1024) + `"}}`
	rec := serve(srv.Handler(), http.MethodPost, "/internal/send-notification", body, loopbackAddr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeBody(t, rec)["type"])
	assert.Empty(t, triggers.pushed)
}

func TestStats(t *testing.T) {
	triggers := newMockTriggers()
	triggers.stats = domain.ConnectionStats{Connections: 3, Reviewers: 2}
	srv := newTestInternalServer(t, triggers)

	rec := serve(srv.Handler(), http.MethodGet, "/internal/stats", "", loopbackAddr)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connections":3,"reviewers":2}`, rec.Body.String())
}

func TestStats_HubStopped(t *testing.T) {
	triggers := newMockTriggers()
	triggers.statsErr = domain.ErrHubStopped
	srv := newTestInternalServer(t, triggers)

	rec := serve(srv.Handler(), http.MethodGet, "/internal/stats", "", loopbackAddr)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody(t, rec)["type"])
}

func TestInternalServer_ServesMetrics(t *testing.T) {
	srv := newTestInternalServer(t, newMockTriggers())
	serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", "", loopbackAddr)

	rec := serve(srv.Handler(), http.MethodGet, "/metrics", "", loopbackAddr)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `adrelay_http_requests_total{method="POST",route="/internal/notify-reviewers",server="internal",status_code="200"} 1`)
}

func TestInternalServer_RejectsExternalPeers(t *testing.T) {
	triggers := newMockTriggers()
	triggers.pushOK = true
	srv := newTestInternalServer(t, triggers)

	for _, path := range []string{"/internal/notify-reviewers", "/internal/notify-submitter", "/internal/send-notification"} {
		rec := serve(srv.Handler(), http.MethodPost, path, `{"userId":"u1","notification":{}}`, "203.0.113.9:5555")

		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "forbidden", decodeBody(t, rec)["type"])
	}
	assert.Equal(t, 0, triggers.reviewerCalls)
	assert.Empty(t, triggers.pushed)

	rec := serve(srv.Handler(), http.MethodGet, "/metrics", "", "203.0.113.9:5555")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInternalServer_ForwardedHeaderDoesNotBypassGuard(t *testing.T) {
	srv := newTestInternalServer(t, newMockTriggers())

	req := newRequest(http.MethodPost, "/internal/notify-reviewers", "203.0.113.9:5555")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	req.Header.Set("X-Real-IP", "127.0.0.1")
	rec := record(srv.Handler(), req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInternalServer_EchoesRequestID(t *testing.T) {
	srv := newTestInternalServer(t, newMockTriggers())

	req := newRequest(http.MethodPost, "/internal/notify-reviewers", loopbackAddr)
	req.Header.Set(correlation.HeaderName, "backend-req-7")
	rec := record(srv.Handler(), req)

	assert.Equal(t, "backend-req-7", rec.Header().Get(correlation.HeaderName))
}

func TestInternalServer_PrivatePeerRejectedByDefault(t *testing.T) {
	triggers := newMockTriggers()
	srv := newTestInternalServer(t, triggers)

	rec := serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", "", "10.1.2.3:5555")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, triggers.reviewerCalls)
}

func TestInternalServer_PrivatePeerAllowedWhenConfigured(t *testing.T) {
	triggers := newMockTriggers()
	cfg := testConfig()
	cfg.InternalAllowPrivate = true
	srv := newTestInternalServerWithConfig(t, cfg, triggers)

	rec := serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", "", "10.1.2.3:5555")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(srv.Handler(), http.MethodPost, "/internal/notify-reviewers", "", "203.0.113.9:5555")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIsInternalPeer(t *testing.T) {
	assert.True(t, isInternalPeer("127.0.0.1:1234", false))
	assert.True(t, isInternalPeer("[::1]:1234", false))
	assert.False(t, isInternalPeer("10.1.2.3:80", false))
	assert.False(t, isInternalPeer("192.168.0.7:80", false))
	assert.True(t, isInternalPeer("10.1.2.3:80", true))
	assert.True(t, isInternalPeer("192.168.0.7:80", true))
	assert.False(t, isInternalPeer("203.0.113.9:80", true))
	assert.False(t, isInternalPeer("not-an-ip", true))
	assert.False(t, isInternalPeer("", false))
}
