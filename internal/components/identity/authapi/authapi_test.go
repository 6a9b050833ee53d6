package authapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/api"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/identity/authapi"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/http/auth"
)

type fixture struct {
	users    *identity.MemoryPartyRepo
	sessions *identity.MemorySessionRepo
	handler  http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ua := identity.NewUserAuth(identity.FastArgon2)
	users := identity.NewMemoryPartyRepo()
	sessions := identity.NewMemorySessionRepo()

	_, err := identity.NewBootstrap(users, ua, nil).Run(context.Background(), []identity.SeededUser{
		{Username: "alice", Email: "alice@example.org", DisplayName: "Alice", Password: "s3cret"},
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	svc := authapi.New(authapi.Config{}, users, sessions, ua)
	r := chi.NewRouter()
	r.Use(auth.NewGate(auth.GateConfig{SessionRepo: sessions, PartyRepo: users}))
	r.Mount("/api/"+svc.Prefix(), svc.Handler())
	return &fixture{users: users, sessions: sessions, handler: r}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func reason(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env api.ErrorEnvelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.ReasonCode
}

func TestLoginMeLogout(t *testing.T) {
	f := newFixture(t)

	rr := f.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", rr.Code, rr.Body)
	}
	var login authapi.LoginResponse
	if err := json.NewDecoder(rr.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" || login.User == nil || login.User.Username != "alice" {
		t.Fatalf("unexpected login response: %+v", login)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != auth.SessionCookie || !cookies[0].HttpOnly {
		t.Errorf("unexpected cookies: %+v", cookies)
	}
	if strings.Contains(rr.Body.String(), "argon2") {
		t.Error("password hash leaked in login response")
	}

	rr = f.do(http.MethodGet, "/api/auth/me", "", login.Token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: status %d", rr.Code)
	}
	var me identity.User
	json.NewDecoder(rr.Body).Decode(&me)
	if me.Email != "alice@example.org" || me.DisplayName != "Alice" {
		t.Errorf("unexpected profile: %+v", me)
	}

	if rr = f.do(http.MethodPost, "/api/auth/logout", "", login.Token); rr.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d", rr.Code)
	}
	rr = f.do(http.MethodGet, "/api/auth/me", "", login.Token)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d", rr.Code)
	}
	if got := reason(t, rr); got != api.ReasonUnauthenticated {
		t.Errorf("reason = %q", got)
	}
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized, api.ReasonInvalidCredentials},
		{"unknown user", `{"username":"bob","password":"s3cret"}`, http.StatusUnauthorized, api.ReasonInvalidCredentials},
		{"missing password", `{"username":"alice"}`, http.StatusBadRequest, api.ReasonInvalidField},
		{"malformed", `{`, http.StatusBadRequest, api.ReasonBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/api/auth/login", tt.body, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := reason(t, rr); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
		})
	}
}

func TestMe_RequiresSession(t *testing.T) {
	f := newFixture(t)
	rr := f.do(http.MethodGet, "/api/auth/me", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}
