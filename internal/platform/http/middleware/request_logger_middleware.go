// Package middleware provides always-on transport middleware for HTTP servers.
package middleware

import (
	"log/slog"
	"net"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
)

// ClientIP returns the host part of r.RemoteAddr. When forwarded headers are
// trusted, chi's RealIP middleware has already rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

// RequestLogger attaches a request-scoped logger to the request context.
//
// Must run after chimw.RequestID so the request id is set.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := base.With(
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path, // path only; invite tokens in it are opaque ids, never codes
				"client_ip", ClientIP(r),
			)
			next.ServeHTTP(w, r.WithContext(appctx.WithLogger(r.Context(), reqLogger)))
		})
	}
}
