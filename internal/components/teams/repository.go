package teams

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository persists teams and invites. Implementations return copies:
// callers may mutate what they get back and must call an Update method to
// persist it.
type Repository interface {
	// CreateTeam stores the team and all of its invites, or nothing.
	// Returns ErrDuplicateToken if any invite token is already taken.
	CreateTeam(ctx context.Context, team *TeamRegistration, invites []*MemberInvite) error
	GetTeam(ctx context.Context, id string) (*TeamRegistration, error)
	UpdateTeam(ctx context.Context, team *TeamRegistration) error
	// ListTeamsByCaptain returns the captain's teams, newest first.
	ListTeamsByCaptain(ctx context.Context, captainID string) ([]*TeamRegistration, error)
	// ListDueTeams returns up to limit pending or partially verified teams
	// whose window closed before now.
	ListDueTeams(ctx context.Context, now time.Time, limit int) ([]*TeamRegistration, error)

	CreateInvite(ctx context.Context, inv *MemberInvite) error
	GetInviteByToken(ctx context.Context, token string) (*MemberInvite, error)
	UpdateInvite(ctx context.Context, inv *MemberInvite) error
	// ListInvites returns every invite of a team in creation order.
	ListInvites(ctx context.Context, teamID string) ([]*MemberInvite, error)
	// ListDueInvites returns up to limit open invites whose window closed before now.
	ListDueInvites(ctx context.Context, now time.Time, limit int) ([]*MemberInvite, error)
	// InviteCounts returns live invite counts for each of the given teams.
	InviteCounts(ctx context.Context, teamIDs []string) (map[string]InviteCounts, error)

	// IncrementAttempts adds one to the invite's attempt counter if it is
	// below limit and returns the new value. The check and the increment
	// are a single atomic step. Returns ErrAttemptsExhausted at the limit.
	IncrementAttempts(ctx context.Context, inviteID string, limit int) (int, error)

	// WithinTx runs fn against a repository bound to one transaction.
	// If fn returns an error nothing it wrote is kept.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}

// MemoryRepository is an in-memory Repository for development and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	teams   map[string]*TeamRegistration
	invites map[string]*MemberInvite
	byToken map[string]string   // token -> invite id
	byTeam  map[string][]string // team id -> invite ids in creation order
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		teams:   make(map[string]*TeamRegistration),
		invites: make(map[string]*MemberInvite),
		byToken: make(map[string]string),
		byTeam:  make(map[string][]string),
	}
}

// memTx is the unlocked view handed to WithinTx callbacks. It records an
// undo step for every write so a failed callback leaves no trace.
type memTx struct {
	r    *MemoryRepository
	undo []func()
}

func (r *MemoryRepository) CreateTeam(ctx context.Context, team *TeamRegistration, invites []*MemberInvite) error {
	return r.write(func(tx *memTx) error { return tx.CreateTeam(ctx, team, invites) })
}

func (r *MemoryRepository) GetTeam(ctx context.Context, id string) (*TeamRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).GetTeam(ctx, id)
}

func (r *MemoryRepository) UpdateTeam(ctx context.Context, team *TeamRegistration) error {
	return r.write(func(tx *memTx) error { return tx.UpdateTeam(ctx, team) })
}

func (r *MemoryRepository) ListTeamsByCaptain(ctx context.Context, captainID string) ([]*TeamRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).ListTeamsByCaptain(ctx, captainID)
}

func (r *MemoryRepository) ListDueTeams(ctx context.Context, now time.Time, limit int) ([]*TeamRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).ListDueTeams(ctx, now, limit)
}

func (r *MemoryRepository) CreateInvite(ctx context.Context, inv *MemberInvite) error {
	return r.write(func(tx *memTx) error { return tx.CreateInvite(ctx, inv) })
}

func (r *MemoryRepository) GetInviteByToken(ctx context.Context, token string) (*MemberInvite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).GetInviteByToken(ctx, token)
}

func (r *MemoryRepository) UpdateInvite(ctx context.Context, inv *MemberInvite) error {
	return r.write(func(tx *memTx) error { return tx.UpdateInvite(ctx, inv) })
}

func (r *MemoryRepository) ListInvites(ctx context.Context, teamID string) ([]*MemberInvite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).ListInvites(ctx, teamID)
}

func (r *MemoryRepository) ListDueInvites(ctx context.Context, now time.Time, limit int) ([]*MemberInvite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).ListDueInvites(ctx, now, limit)
}

func (r *MemoryRepository) InviteCounts(ctx context.Context, teamIDs []string) (map[string]InviteCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return (&memTx{r: r}).InviteCounts(ctx, teamIDs)
}

func (r *MemoryRepository) IncrementAttempts(ctx context.Context, inviteID string, limit int) (int, error) {
	var n int
	err := r.write(func(tx *memTx) error {
		var err error
		n, err = tx.IncrementAttempts(ctx, inviteID, limit)
		return err
	})
	return n, err
}

// WithinTx holds the write lock for the whole callback.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.write(func(tx *memTx) error { return fn(tx) })
}

func (r *MemoryRepository) write(fn func(tx *memTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{r: r}
	if err := fn(tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func (tx *memTx) CreateTeam(_ context.Context, team *TeamRegistration, invites []*MemberInvite) error {
	r := tx.r
	seen := make(map[string]bool, len(invites))
	for _, inv := range invites {
		if _, taken := r.byToken[inv.Token]; taken || seen[inv.Token] {
			return ErrDuplicateToken
		}
		seen[inv.Token] = true
	}

	r.teams[team.ID] = team.Clone()
	tx.undo = append(tx.undo, func() { delete(r.teams, team.ID) })
	for _, inv := range invites {
		tx.insertInvite(inv)
	}
	return nil
}

func (tx *memTx) insertInvite(inv *MemberInvite) {
	r := tx.r
	prevIDs := r.byTeam[inv.TeamID]
	r.invites[inv.ID] = inv.Clone()
	r.byToken[inv.Token] = inv.ID
	r.byTeam[inv.TeamID] = append(append([]string(nil), prevIDs...), inv.ID)
	tx.undo = append(tx.undo, func() {
		delete(r.invites, inv.ID)
		delete(r.byToken, inv.Token)
		if prevIDs == nil {
			delete(r.byTeam, inv.TeamID)
		} else {
			r.byTeam[inv.TeamID] = prevIDs
		}
	})
}

func (tx *memTx) GetTeam(_ context.Context, id string) (*TeamRegistration, error) {
	t, ok := tx.r.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}
	return t.Clone(), nil
}

func (tx *memTx) UpdateTeam(_ context.Context, team *TeamRegistration) error {
	r := tx.r
	prev, ok := r.teams[team.ID]
	if !ok {
		return ErrTeamNotFound
	}
	r.teams[team.ID] = team.Clone()
	tx.undo = append(tx.undo, func() { r.teams[team.ID] = prev })
	return nil
}

func (tx *memTx) ListTeamsByCaptain(_ context.Context, captainID string) ([]*TeamRegistration, error) {
	var out []*TeamRegistration
	for _, t := range tx.r.teams {
		if t.CaptainID == captainID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (tx *memTx) ListDueTeams(_ context.Context, now time.Time, limit int) ([]*TeamRegistration, error) {
	var out []*TeamRegistration
	for _, t := range tx.r.teams {
		if teamDue(t, now) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memTx) CreateInvite(_ context.Context, inv *MemberInvite) error {
	if _, ok := tx.r.teams[inv.TeamID]; !ok {
		return ErrTeamNotFound
	}
	if _, taken := tx.r.byToken[inv.Token]; taken {
		return ErrDuplicateToken
	}
	tx.insertInvite(inv)
	return nil
}

func (tx *memTx) GetInviteByToken(_ context.Context, token string) (*MemberInvite, error) {
	id, ok := tx.r.byToken[token]
	if !ok {
		return nil, ErrInviteNotFound
	}
	return tx.r.invites[id].Clone(), nil
}

func (tx *memTx) UpdateInvite(_ context.Context, inv *MemberInvite) error {
	r := tx.r
	prev, ok := r.invites[inv.ID]
	if !ok {
		return ErrInviteNotFound
	}
	next := inv.Clone()
	// The token and team are fixed at creation.
	next.Token = prev.Token
	next.TeamID = prev.TeamID
	r.invites[inv.ID] = next
	tx.undo = append(tx.undo, func() { r.invites[inv.ID] = prev })
	return nil
}

func (tx *memTx) ListInvites(_ context.Context, teamID string) ([]*MemberInvite, error) {
	ids := tx.r.byTeam[teamID]
	out := make([]*MemberInvite, 0, len(ids))
	for _, id := range ids {
		out = append(out, tx.r.invites[id].Clone())
	}
	return out, nil
}

func (tx *memTx) ListDueInvites(_ context.Context, now time.Time, limit int) ([]*MemberInvite, error) {
	var out []*MemberInvite
	for _, inv := range tx.r.invites {
		if inviteDue(inv, now) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (tx *memTx) InviteCounts(_ context.Context, teamIDs []string) (map[string]InviteCounts, error) {
	out := make(map[string]InviteCounts, len(teamIDs))
	for _, teamID := range teamIDs {
		var c InviteCounts
		for _, id := range tx.r.byTeam[teamID] {
			inv := tx.r.invites[id]
			if inv.Status == InviteReplaced {
				continue
			}
			c.Total++
			if inv.IsVerified {
				c.Verified++
			}
		}
		out[teamID] = c
	}
	return out, nil
}

func (tx *memTx) IncrementAttempts(_ context.Context, inviteID string, limit int) (int, error) {
	r := tx.r
	prev, ok := r.invites[inviteID]
	if !ok {
		return 0, ErrInviteNotFound
	}
	if prev.OTPAttempts >= limit {
		return prev.OTPAttempts, ErrAttemptsExhausted
	}
	next := prev.Clone()
	next.OTPAttempts++
	r.invites[inviteID] = next
	tx.undo = append(tx.undo, func() { r.invites[inviteID] = prev })
	return next.OTPAttempts, nil
}

// WithinTx on an open transaction runs fn in the same transaction.
func (tx *memTx) WithinTx(_ context.Context, fn func(tx Repository) error) error {
	return fn(tx)
}

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*memTx)(nil)
)
