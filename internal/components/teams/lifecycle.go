package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
)

// Resend reopens an unverified invite for a fresh window and sends the
// invitation again with the same token. Codes and attempts are untouched.
// A team that closed only because its window lapsed is reopened with the
// invite; a cancelled team stays closed.
func (s *Service) Resend(ctx context.Context, caller Caller, teamID, email string) error {
	target, err := NormalizeEmail(email)
	if err != nil {
		return validationError(ReasonInvalidEmail, "invalid email %q", email)
	}

	var msg notify.Message
	err = s.inTeam(ctx, teamID, func(tx Repository, st *teamState) error {
		if err := s.requireCaptain(caller, st.team); err != nil {
			return err
		}
		if st.team.Status == TeamCancelled {
			return conflictError(ReasonTeamClosed, "the team registration is "+string(st.team.Status))
		}
		cur := st.liveInviteFor(target)
		if cur == nil {
			return notFoundError(ReasonInviteNotFound, "no invite for that email on this team")
		}
		if cur.IsVerified {
			return conflictError(ReasonAlreadyVerified, "the invite is already verified")
		}

		reopenInvite(cur, s.cfg.InviteWindow, st.now)
		if err := tx.UpdateInvite(ctx, cur); err != nil {
			return fmt.Errorf("store invite: %w", err)
		}
		reopened := reopenTeam(st.team, st.now)
		if err := s.coverInvite(ctx, tx, st, cur); err != nil {
			return err
		}
		if recompute(st.team, st.invites, st.now) || reopened {
			if err := tx.UpdateTeam(ctx, st.team); err != nil {
				return fmt.Errorf("store team status: %w", err)
			}
		}
		if reopened {
			s.logger(ctx).Info("expired team reopened", "team_id", teamID, "status", string(st.team.Status))
		}
		msg = s.invitationMessage(st.team, cur)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx).Info("invitation resent", "team_id", teamID)
	s.dispatch(ctx, msg)
	return nil
}

// Replace swaps an unverified invitee for a new address. The old invite is
// marked replaced and a new one is created with its own token.
func (s *Service) Replace(ctx context.Context, caller Caller, teamID, oldEmail, newEmail string) (*InviteDispatch, error) {
	from, err := NormalizeEmail(oldEmail)
	if err != nil {
		return nil, validationError(ReasonInvalidEmail, "invalid email %q", oldEmail)
	}
	to, err := NormalizeEmail(newEmail)
	if err != nil {
		return nil, validationError(ReasonInvalidEmail, "invalid email %q", newEmail)
	}

	var msg notify.Message
	err = s.inTeam(ctx, teamID, func(tx Repository, st *teamState) error {
		if err := s.requireCaptain(caller, st.team); err != nil {
			return err
		}
		if st.team.Status.Terminal() {
			return conflictError(ReasonTeamClosed, "the team registration is "+string(st.team.Status))
		}
		old := st.liveInviteFor(from)
		if old == nil {
			return notFoundError(ReasonInviteNotFound, "no invite for that email on this team")
		}
		if old.IsVerified {
			return conflictError(ReasonAlreadyVerified, "a verified member cannot be replaced")
		}
		if to == st.team.CaptainEmail {
			return validationError(ReasonSelfInvite, "the captain cannot invite their own email")
		}
		if st.liveInviteFor(to) != nil {
			return validationError(ReasonDuplicateEmail, "email %s is already invited", to)
		}

		old.Status = InviteReplaced
		old.OTPHash = ""
		old.OTPExpiresAt = nil
		old.UpdatedAt = st.now
		if err := tx.UpdateInvite(ctx, old); err != nil {
			return fmt.Errorf("store replaced invite: %w", err)
		}

		next := &MemberInvite{
			ID:        s.newID(),
			TeamID:    st.team.ID,
			Email:     to,
			Role:      RoleMember,
			ExpiresAt: st.now.Add(s.cfg.InviteWindow),
			Status:    InviteInvited,
			CreatedAt: st.now,
			UpdatedAt: st.now,
		}
		if err := s.insertWithToken(ctx, tx, next); err != nil {
			return err
		}
		st.invites = append(st.invites, next)

		if err := s.coverInvite(ctx, tx, st, next); err != nil {
			return err
		}
		if recompute(st.team, st.invites, st.now) {
			if err := tx.UpdateTeam(ctx, st.team); err != nil {
				return fmt.Errorf("store team status: %w", err)
			}
		}
		msg = s.invitationMessage(st.team, next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("invite replaced", "team_id", teamID)
	status := DispatchSent
	if !s.dispatch(ctx, msg) {
		status = DispatchFailed
	}
	return &InviteDispatch{Email: to, Status: status}, nil
}

func (s *Service) insertWithToken(ctx context.Context, tx Repository, inv *MemberInvite) error {
	for attempt := 0; ; attempt++ {
		tok, err := s.tokens.InviteToken()
		if err != nil {
			return fmt.Errorf("generate invite token: %w", err)
		}
		inv.Token = tok
		err = tx.CreateInvite(ctx, inv)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateToken) || attempt >= s.cfg.TokenRetries {
			return fmt.Errorf("store invite: %w", err)
		}
	}
}

// coverInvite extends the team window so it does not close before inv.
func (s *Service) coverInvite(ctx context.Context, tx Repository, st *teamState, inv *MemberInvite) error {
	if !inv.ExpiresAt.After(st.team.ExpiresAt) {
		return nil
	}
	st.team.ExpiresAt = inv.ExpiresAt
	st.team.UpdatedAt = st.now
	if err := tx.UpdateTeam(ctx, st.team); err != nil {
		return fmt.Errorf("store team window: %w", err)
	}
	return nil
}

// Cancel closes the team. Unverified invites are expired; verified ones are kept.
func (s *Service) Cancel(ctx context.Context, caller Caller, teamID, reason string) error {
	reason = strings.TrimSpace(reason)

	var closed int
	err := s.inTeam(ctx, teamID, func(tx Repository, st *teamState) error {
		if err := s.requireCaptain(caller, st.team); err != nil {
			return err
		}
		if len(reason) > maxReasonLen {
			return validationError(ReasonInvalidField, "reason must be at most %d characters", maxReasonLen)
		}
		switch st.team.Status {
		case TeamCancelled:
			return conflictError(ReasonAlreadyCancelled, "the team registration is already cancelled")
		case TeamExpired:
			return conflictError(ReasonTeamClosed, "the team registration has expired")
		}

		cancelTeam(st.team, reason, st.now)
		if err := tx.UpdateTeam(ctx, st.team); err != nil {
			return fmt.Errorf("store cancellation: %w", err)
		}
		for _, inv := range closeOpenInvites(st.invites, st.now) {
			if err := tx.UpdateInvite(ctx, inv); err != nil {
				return fmt.Errorf("store invite: %w", err)
			}
			closed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx).Info("team registration cancelled", "team_id", teamID, "invites_closed", closed)
	return nil
}

// SweepStats counts what one Sweep persisted.
type SweepStats struct {
	TeamsExpired   int
	InvitesExpired int
}

// Sweep applies pending expiries to at most limit teams and limit invites.
// It uses the same transitions as request-time expiry.
func (s *Service) Sweep(ctx context.Context, limit int) (SweepStats, error) {
	var stats SweepStats
	now := s.now()

	teams, err := s.repo.ListDueTeams(ctx, now, limit)
	if err != nil {
		return stats, fmt.Errorf("list due teams: %w", err)
	}
	invites, err := s.repo.ListDueInvites(ctx, now, limit)
	if err != nil {
		return stats, fmt.Errorf("list due invites: %w", err)
	}

	teamIDs := make([]string, 0, len(teams)+len(invites))
	seen := make(map[string]bool)
	for _, t := range teams {
		if !seen[t.ID] {
			seen[t.ID] = true
			teamIDs = append(teamIDs, t.ID)
		}
	}
	for _, inv := range invites {
		if !seen[inv.TeamID] {
			seen[inv.TeamID] = true
			teamIDs = append(teamIDs, inv.TeamID)
		}
	}

	for _, id := range teamIDs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		err := s.inTeam(ctx, id, func(_ Repository, st *teamState) error {
			if st.expiredTeam {
				stats.TeamsExpired++
			}
			stats.InvitesExpired += st.expiredInvites
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("sweep team %s: %w", id, err)
		}
	}
	return stats, nil
}
