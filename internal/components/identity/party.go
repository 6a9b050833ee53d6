// Package identity is the Identity Directory: users, password login and
// sessions. Callers of the team flow are resolved from a session to a User.
package identity

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrEmailExists     = errors.New("email already in use")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
)

// User is an account that can sign in.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PartyRepo stores users.
type PartyRepo interface {
	// Create stores a new user, assigning an ID if empty. Returns
	// ErrUserExists or ErrEmailExists on conflicts.
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

// NewID returns a time-ordered UUIDv7 string.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryPartyRepo keeps users in memory with username and email indexes.
type MemoryPartyRepo struct {
	mu         sync.RWMutex
	users      map[string]*User
	byUsername map[string]string
	byEmail    map[string]string
}

func NewMemoryPartyRepo() *MemoryPartyRepo {
	return &MemoryPartyRepo{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *MemoryPartyRepo) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return ErrUserExists
	}
	key := emailKey(user.Email)
	if key != "" {
		if _, exists := r.byEmail[key]; exists {
			return ErrEmailExists
		}
	}

	if user.ID == "" {
		user.ID = NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	u := *user
	r.users[u.ID] = &u
	r.byUsername[u.Username] = u.ID
	if key != "" {
		r.byEmail[key] = u.ID
	}
	return nil
}

func (r *MemoryPartyRepo) Get(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyOf(id)
}

func (r *MemoryPartyRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyOf(r.byUsername[username])
}

func (r *MemoryPartyRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	key := emailKey(email)
	if key == "" {
		return nil, ErrUserNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyOf(r.byEmail[key])
}

// List returns every user ordered by username.
func (r *MemoryPartyRepo) List(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *MemoryPartyRepo) copyOf(id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}
