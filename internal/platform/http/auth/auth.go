// Package auth provides session authentication middleware for HTTP servers.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "session"

type contextKey string

const (
	sessionContextKey contextKey = "session"
	userContextKey    contextKey = "user"
	failureContextKey contextKey = "auth_failure"
)

// GateConfig configures the session gate.
type GateConfig struct {
	Log         *slog.Logger
	SessionRepo identity.SessionRepo
	PartyRepo   identity.PartyRepo
}

type failure struct {
	reason  string
	message string
}

// NewGate returns a middleware that resolves the session token, if any, to a
// user and stores both in the request context. It never rejects a request;
// RequireUser does that for routes that need a caller.
func NewGate(cfg GateConfig) func(http.Handler) http.Handler {
	log := logutil.NoopIfNil(cfg.Log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractSessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			session, err := cfg.SessionRepo.Get(ctx, token)
			if err != nil {
				f := failure{api.ReasonUnauthenticated, "session not found"}
				if errors.Is(err, identity.ErrSessionExpired) {
					f = failure{api.ReasonSessionExpired, "session has expired"}
				} else if !errors.Is(err, identity.ErrSessionNotFound) {
					log.Warn("session lookup failed", "error", err)
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, failureContextKey, f)))
				return
			}

			user, err := cfg.PartyRepo.Get(ctx, session.UserID)
			if err != nil {
				f := failure{api.ReasonUnauthenticated, "session user not found"}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, failureContextKey, f)))
				return
			}

			ctx = context.WithValue(ctx, sessionContextKey, session)
			ctx = context.WithValue(ctx, userContextKey, user)
			ctx = appctx.WithAttrs(ctx, "user_id", user.ID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests without an authenticated user with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		if f, ok := r.Context().Value(failureContextKey).(failure); ok {
			api.WriteUnauthorized(w, f.reason, f.message)
			return
		}
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
	})
}

// ExtractSessionToken gets the session token from the cookie or a Bearer
// Authorization header.
func ExtractSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// GetSessionFromContext returns the session from request context.
func GetSessionFromContext(ctx context.Context) *identity.Session {
	session, _ := ctx.Value(sessionContextKey).(*identity.Session)
	return session
}

// GetUserFromContext returns the user from request context.
func GetUserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}

// WithUser returns a context carrying user, for handlers mounted without the gate.
func WithUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
