package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session is an active login.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the session is no longer valid at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionRepo stores sessions by token.
type SessionRepo interface {
	Create(ctx context.Context, userID string, ttl time.Duration) (*Session, error)
	// Get returns ErrSessionNotFound or ErrSessionExpired for unusable tokens.
	Get(ctx context.Context, token string) (*Session, error)
	// Delete is a no-op for unknown tokens.
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int, error)
}

// GenerateToken returns 32 random bytes, URL-safe encoded.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemorySessionRepo keeps sessions in memory.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]*Session), now: time.Now}
}

func (r *MemorySessionRepo) Create(_ context.Context, userID string, ttl time.Duration) (*Session, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	now := r.now()
	s := &Session{Token: token, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[token] = s
	c := *s
	return &c, nil
}

func (r *MemorySessionRepo) Get(_ context.Context, token string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.ExpiredAt(r.now()) {
		return nil, ErrSessionExpired
	}
	c := *s
	return &c, nil
}

func (r *MemorySessionRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
	return nil
}

func (r *MemorySessionRepo) DeleteExpired(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for tok, s := range r.sessions {
		if s.ExpiredAt(now) {
			delete(r.sessions, tok)
			n++
		}
	}
	return n, nil
}
