package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryPartyRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPartyRepo()

	u := &User{Username: "alice", Email: "Alice@Example.org"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected ID and CreatedAt to be assigned: %+v", u)
	}

	if err := repo.Create(ctx, &User{Username: "alice"}); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate username: got %v", err)
	}
	if err := repo.Create(ctx, &User{Username: "alice2", Email: "alice@example.ORG "}); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate email: got %v", err)
	}

	got, err := repo.GetByEmail(ctx, "ALICE@example.org")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}
	got.DisplayName = "mutated"
	again, _ := repo.Get(ctx, u.ID)
	if again.DisplayName == "mutated" {
		t.Error("Get must return a copy")
	}

	if _, err := repo.GetByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown username: got %v", err)
	}
	if _, err := repo.GetByEmail(ctx, ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("empty email: got %v", err)
	}

	repo.Create(ctx, &User{Username: "aaron"})
	list, _ := repo.List(ctx)
	if len(list) != 2 || list[0].Username != "aaron" {
		t.Errorf("List order: %+v", list)
	}
}

func TestMemorySessionRepo(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewMemorySessionRepo()
	repo.now = func() time.Time { return now }

	s, err := repo.Create(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(s.Token) < 40 {
		t.Errorf("token too short: %q", s.Token)
	}

	got, err := repo.Get(ctx, s.Token)
	if err != nil || got.UserID != "user-1" {
		t.Fatalf("Get: %v %+v", err, got)
	}

	now = now.Add(time.Hour)
	if _, err := repo.Get(ctx, s.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}
	n, _ := repo.DeleteExpired(ctx)
	if n != 1 {
		t.Errorf("DeleteExpired = %d", n)
	}
	if _, err := repo.Get(ctx, s.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, "unknown"); err != nil {
		t.Errorf("Delete unknown: %v", err)
	}
}

func TestUserAuth(t *testing.T) {
	ua := NewUserAuth(FastArgon2)

	hash, err := ua.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Errorf("unexpected hash format: %s", hash)
	}
	if err := ua.VerifyPassword(hash, "correct horse"); err != nil {
		t.Errorf("VerifyPassword: %v", err)
	}
	if err := ua.VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("wrong password: got %v", err)
	}

	// Verification reads the cost from the hash, not the verifier.
	if err := NewUserAuth(Argon2Params{}).VerifyPassword(hash, "correct horse"); err != nil {
		t.Errorf("verify with different params: %v", err)
	}

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=x$AA$AA", "$argon2id$v=19$m=8192,t=1,p=1$!!$AA"} {
		if err := ua.VerifyPassword(bad, "x"); !errors.Is(err, ErrInvalidPassword) {
			t.Errorf("VerifyPassword(%q) = %v", bad, err)
		}
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPartyRepo()
	ua := NewUserAuth(FastArgon2)
	b := NewBootstrap(repo, ua, nil)

	seed := []SeededUser{
		{Username: "alice", Email: " Alice@Example.org", Password: "pw1"},
		{Username: "bob", Email: "bob@example.org", DisplayName: "Bob", Password: "pw2"},
	}
	n, err := b.Run(ctx, seed)
	if err != nil || n != 2 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	n, err = b.Run(ctx, seed)
	if err != nil || n != 0 {
		t.Fatalf("second Run = %d, %v; want idempotent", n, err)
	}

	u, err := ua.Authenticate(ctx, repo, "alice", "pw1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.Email != "alice@example.org" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if _, err := ua.Authenticate(ctx, repo, "bob", "pw1"); err == nil {
		t.Error("expected wrong password to fail")
	}

	if _, err := b.Run(ctx, []SeededUser{{Username: "carol"}}); err == nil {
		t.Error("expected missing password to fail")
	}
}
