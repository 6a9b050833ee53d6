package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
	httpmw "github.com/MahdiBaghbani/teamverify-go/internal/platform/http/middleware"
)

// attrHandler remembers the attributes its logger was built with.
type attrHandler struct {
	attrs map[string]any
}

func (h *attrHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (h *attrHandler) Handle(context.Context, slog.Record) error { return nil }
func (h *attrHandler) WithGroup(string) slog.Handler             { return h }

func (h *attrHandler) WithAttrs(as []slog.Attr) slog.Handler {
	nh := &attrHandler{attrs: map[string]any{}}
	for k, v := range h.attrs {
		nh.attrs[k] = v
	}
	for _, a := range as {
		nh.attrs[a.Key] = a.Value.Any()
	}
	return nh
}

type fixture struct {
	users    *identity.MemoryPartyRepo
	sessions *identity.MemorySessionRepo
	user     *identity.User
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users := identity.NewMemoryPartyRepo()
	sessions := identity.NewMemorySessionRepo()
	u := &identity.User{Username: "alice", Email: "alice@example.org"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatal(err)
	}
	s, err := sessions.Create(ctx, u.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{users: users, sessions: sessions, user: u, token: s.Token}
}

func (f *fixture) router(log *slog.Logger, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(log))
	r.Use(NewGate(GateConfig{Log: log, SessionRepo: f.sessions, PartyRepo: f.users}))
	r.Get("/public", h)
	r.With(RequireUser).Get("/private", h)
	return r
}

func TestGate_AttachesUserAndLogger(t *testing.T) {
	f := newFixture(t)
	var gotUser *identity.User
	var gotAttrs map[string]any

	h := f.router(slog.New(&attrHandler{attrs: map[string]any{}}), func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserFromContext(r.Context())
		if ah, ok := appctx.GetLogger(r.Context()).Handler().(*attrHandler); ok {
			gotAttrs = ah.attrs
		}
	})

	for _, viaCookie := range []bool{false, true} {
		gotUser = nil
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		if viaCookie {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: f.token})
		} else {
			req.Header.Set("Authorization", "Bearer "+f.token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("cookie=%v: status %d", viaCookie, rr.Code)
		}
		if gotUser == nil || gotUser.ID != f.user.ID {
			t.Fatalf("cookie=%v: user not attached", viaCookie)
		}
		if gotAttrs["user_id"] != f.user.ID {
			t.Errorf("cookie=%v: logger user_id = %v", viaCookie, gotAttrs["user_id"])
		}
	}
}

func TestGate_PublicRoutesPassWithoutSession(t *testing.T) {
	f := newFixture(t)
	var sawUser bool
	h := f.router(slog.New(&attrHandler{attrs: map[string]any{}}), func(w http.ResponseWriter, r *http.Request) {
		sawUser = GetUserFromContext(r.Context()) != nil
	})

	for _, token := range []string{"", "bogus"} {
		req := httptest.NewRequest(http.MethodGet, "/public", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK || sawUser {
			t.Errorf("token %q: status %d, user %v", token, rr.Code, sawUser)
		}
	}
}

func TestRequireUser_Reasons(t *testing.T) {
	f := newFixture(t)
	f.sessions = identity.NewMemorySessionRepo()
	expired, _ := f.sessions.Create(context.Background(), f.user.ID, -time.Minute)
	orphan, _ := f.sessions.Create(context.Background(), "ghost", time.Hour)

	h := f.router(slog.New(&attrHandler{attrs: map[string]any{}}), func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name   string
		token  string
		reason string
	}{
		{"no token", "", api.ReasonUnauthenticated},
		{"unknown token", "nope", api.ReasonUnauthenticated},
		{"expired", expired.Token, api.ReasonSessionExpired},
		{"user gone", orphan.Token, api.ReasonUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rr.Code)
			}
			var env api.ErrorEnvelope
			json.NewDecoder(rr.Body).Decode(&env)
			if env.Error.ReasonCode != tt.reason {
				t.Errorf("reason = %q, want %q", env.Error.ReasonCode, tt.reason)
			}
		})
	}
}

func TestExtractSessionToken_CookieWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "from-cookie"})
	req.Header.Set("Authorization", "Bearer from-header")
	if got := ExtractSessionToken(req); got != "from-cookie" {
		t.Errorf("got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := ExtractSessionToken(req); got != "" {
		t.Errorf("non-bearer header: got %q", got)
	}
}
