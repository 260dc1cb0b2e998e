package httpserver

import (
	"net"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/adrelay/internal/platform/config"
	apperrors "github.com/pscheid92/adrelay/internal/platform/errors"
)

// internalNetworkOnly rejects callers whose TCP peer is not loopback, or
// private when allowPrivate is set.
// Forwarding headers are ignored: the trigger endpoint is never behind a proxy.
func internalNetworkOnly(allowPrivate bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !isInternalPeer(c.Request().RemoteAddr, allowPrivate) {
				return apperrors.ForbiddenError("internal endpoint").WithField("remote_addr", c.Request().RemoteAddr)
			}
			return next(c)
		}
	}
}

func isInternalPeer(remoteAddr string, allowPrivate bool) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return config.IsInternalIP(net.ParseIP(host), allowPrivate)
}
