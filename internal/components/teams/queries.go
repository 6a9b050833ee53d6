package teams

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InviteSummary is an invite as shown in team detail.
type InviteSummary struct {
	Email      string       `json:"email"`
	Role       Role         `json:"role"`
	Status     InviteStatus `json:"status"`
	IsVerified bool         `json:"is_verified"`
	VerifiedAt *time.Time   `json:"verified_at,omitempty"`
	ExpiresAt  time.Time    `json:"expires_at"`
}

// TeamView is the team detail projection.
type TeamView struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	CaptainID     string          `json:"captain_id"`
	CaptainEmail  string          `json:"captain_email"`
	CaptainName   string          `json:"captain_name"`
	TeamSize      int             `json:"team_size"`
	TotalAmount   int64           `json:"total_amount"`
	PaidAmount    int64           `json:"paid_amount"`
	Status        TeamStatus      `json:"status"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Event         EventSnapshot   `json:"event"`
	VerifiedCount int             `json:"verified_count"`
	TotalCount    int             `json:"total_count"`
	Invites       []InviteSummary `json:"invites"`
}

// GetTeam returns team detail to the captain or a verified member. It does
// not write; statuses whose window has passed are shown as expired.
func (s *Service) GetTeam(ctx context.Context, caller Caller, teamID string) (*TeamView, error) {
	team, err := s.repo.GetTeam(ctx, teamID)
	if errors.Is(err, ErrTeamNotFound) {
		return nil, notFoundError(ReasonTeamNotFound, "team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}
	invites, err := s.repo.ListInvites(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load invites: %w", err)
	}

	if caller.UserID != team.CaptainID && !isVerifiedMember(caller, invites) {
		return nil, forbiddenError(ReasonNotTeamMember, "only the captain and verified members can view this team")
	}

	now := s.now()
	verified, total, _ := countVerification(invites)
	view := &TeamView{
		ID:            team.ID,
		EventID:       team.EventID,
		Name:          displayName(team),
		CaptainID:     team.CaptainID,
		CaptainEmail:  team.CaptainEmail,
		CaptainName:   team.CaptainName,
		TeamSize:      team.TeamSize,
		TotalAmount:   team.TotalAmount,
		PaidAmount:    team.PaidAmount,
		Status:        effectiveTeamStatus(team, now),
		ExpiresAt:     team.ExpiresAt,
		CancelReason:  team.CancelReason,
		CancelledAt:   team.CancelledAt,
		CreatedAt:     team.CreatedAt,
		Event:         team.Event,
		VerifiedCount: verified,
		TotalCount:    total,
		Invites:       make([]InviteSummary, 0, len(invites)),
	}
	for _, inv := range invites {
		if inv.Status == InviteReplaced {
			continue
		}
		view.Invites = append(view.Invites, InviteSummary{
			Email:      inv.Email,
			Role:       inv.Role,
			Status:     effectiveInviteStatus(inv, team, now),
			IsVerified: inv.IsVerified,
			VerifiedAt: inv.VerifiedAt,
			ExpiresAt:  inv.ExpiresAt,
		})
	}
	return view, nil
}

func isVerifiedMember(caller Caller, invites []*MemberInvite) bool {
	for _, inv := range invites {
		if inv.IsVerified && inv.Status != InviteReplaced && sameEmail(caller.Email, inv.Email) {
			return true
		}
	}
	return false
}

// TeamSummary is one entry of ListMyTeams.
type TeamSummary struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	EventID       string     `json:"event_id"`
	EventTitle    string     `json:"event_title"`
	TeamSize      int        `json:"team_size"`
	TotalAmount   int64      `json:"total_amount"`
	Status        TeamStatus `json:"status"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
	InviteCount   int        `json:"invite_count"`
	VerifiedCount int        `json:"verified_count"`
}

// ListMyTeams returns the caller's teams as captain, newest first.
func (s *Service) ListMyTeams(ctx context.Context, caller Caller) ([]TeamSummary, error) {
	list, err := s.repo.ListTeamsByCaptain(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	ids := make([]string, len(list))
	for i, t := range list {
		ids[i] = t.ID
	}
	counts, err := s.repo.InviteCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("count invites: %w", err)
	}

	now := s.now()
	out := make([]TeamSummary, 0, len(list))
	for _, t := range list {
		c := counts[t.ID]
		out = append(out, TeamSummary{
			ID:            t.ID,
			Name:          displayName(t),
			EventID:       t.EventID,
			EventTitle:    t.Event.Title,
			TeamSize:      t.TeamSize,
			TotalAmount:   t.TotalAmount,
			Status:        effectiveTeamStatus(t, now),
			ExpiresAt:     t.ExpiresAt,
			CreatedAt:     t.CreatedAt,
			InviteCount:   c.Total,
			VerifiedCount: c.Verified,
		})
	}
	return out, nil
}
