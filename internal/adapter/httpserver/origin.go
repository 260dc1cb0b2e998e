package httpserver

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a socket. Origins are
// compared in canonical form: lowercase scheme and host, default port dropped.
type originPolicy struct {
	allowed       map[string]struct{}
	allowLoopback bool
}

// newOriginPolicy allows the web app's own origin, any extra origins, and in
// development loopback origins on any port. Unparseable entries are ignored.
func newOriginPolicy(appURL string, extra []string, isDevelopment bool) *originPolicy {
	p := &originPolicy{
		allowed:       make(map[string]struct{}, len(extra)+1),
		allowLoopback: isDevelopment,
	}
	for _, raw := range append([]string{appURL}, extra...) {
		if origin := canonicalOrigin(raw); origin != "" {
			p.allowed[origin] = struct{}{}
		}
	}
	return p
}

// Allows reports whether a request carrying this Origin header may upgrade.
// Non-browser clients send no Origin and are always allowed.
func (p *originPolicy) Allows(origin string) bool {
	if origin == "" {
		return true
	}

	canonical := canonicalOrigin(origin)
	if canonical == "" {
		return false
	}
	if _, ok := p.allowed[canonical]; ok {
		return true
	}
	return p.allowLoopback && isLoopbackOrigin(canonical)
}

// checkOrigin is the upgrader hook; refusals are logged and counted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if s.origins.Allows(origin) {
		return true
	}

	s.metrics.Socket.RecordRejection("origin")
	slog.WarnContext(r.Context(), "WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
	return false
}

// canonicalOrigin reduces a URL to scheme://host[:port], or "" if it has no host.
func canonicalOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			host = "[" + host + "]"
		}
		return scheme + "://" + host
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
