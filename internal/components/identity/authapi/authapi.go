// Package authapi serves /api/auth: password login, logout and the caller
// profile.
package authapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/auth"
)

// DefaultSessionTTL is used when Config.SessionTTL is zero.
const DefaultSessionTTL = 24 * time.Hour

// Config configures the auth API.
type Config struct {
	SessionTTL time.Duration
	// SecureCookie forces the Secure cookie attribute behind a TLS proxy.
	SecureCookie bool
}

// Service implements service.Service for /api/auth.
type Service struct {
	cfg      Config
	users    identity.PartyRepo
	sessions identity.SessionRepo
	auth     *identity.UserAuth
	router   chi.Router
}

var _ service.Service = (*Service)(nil)

// New creates the auth API.
func New(cfg Config, users identity.PartyRepo, sessions identity.SessionRepo, ua *identity.UserAuth) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	s := &Service{cfg: cfg, users: users, sessions: sessions, auth: ua}

	r := chi.NewRouter()
	r.Post("/login", s.login)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Post("/logout", s.logout)
		r.Get("/me", s.me)
	})
	s.router = r
	return s
}

func (s *Service) Handler() http.Handler { return s.router }
func (s *Service) Prefix() string        { return "auth" }
func (s *Service) Close() error          { return nil }

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/auth/login.
type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *identity.User `json:"user"`
}

func (s *Service) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonInvalidField, "username and password are required")
		return
	}

	ctx := r.Context()
	log := appctx.GetLogger(ctx)

	user, err := s.auth.Authenticate(ctx, s.users, req.Username, req.Password)
	if err != nil {
		log.Info("login rejected", "username", req.Username)
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
		return
	}

	session, err := s.sessions.Create(ctx, user.ID, s.cfg.SessionTTL)
	if err != nil {
		log.Error("create session failed", "error", err)
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie || r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info("login", slog.String("user_id", user.ID))
	api.WriteJSON(w, http.StatusOK, LoginResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user})
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	if session := auth.GetSessionFromContext(r.Context()); session != nil {
		if err := s.sessions.Delete(r.Context(), session.Token); err != nil {
			appctx.GetLogger(r.Context()).Warn("delete session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) me(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, auth.GetUserFromContext(r.Context()))
}
