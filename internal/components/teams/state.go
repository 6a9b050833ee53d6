package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// teamState is a team and all of its invites loaded inside a locked
// transaction, with pending expiries already applied and stored.
type teamState struct {
	team           *TeamRegistration
	invites        []*MemberInvite
	now            time.Time
	expiredTeam    bool
	expiredInvites int
}

func (st *teamState) invite(id string) *MemberInvite {
	for _, inv := range st.invites {
		if inv.ID == id {
			return inv
		}
	}
	return nil
}

// liveInviteFor finds the invite for a normalized email, skipping replaced ones.
func (st *teamState) liveInviteFor(email string) *MemberInvite {
	for _, inv := range st.invites {
		if inv.Status != InviteReplaced && inv.Email == email {
			return inv
		}
	}
	return nil
}

// inTeam runs fn under the team lock inside a repository transaction. The
// team is loaded and expired first. Domain errors returned by fn commit what
// was written before them (expiry, attempt counts); any other error rolls
// the transaction back.
func (s *Service) inTeam(ctx context.Context, teamID string, fn func(tx Repository, st *teamState) error) error {
	release, err := s.locker.Acquire(ctx, "team:"+teamID, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("lock team %s: %w", teamID, err)
	}
	defer release()

	var domainErr error
	err = s.repo.WithinTx(ctx, func(tx Repository) error {
		st, err := s.loadTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if err := fn(tx, st); err != nil {
			var de *Error
			if errors.As(err, &de) {
				domainErr = err
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			return err
		}
		return fmt.Errorf("team %s: %w", teamID, err)
	}
	return domainErr
}

func (s *Service) loadTeam(ctx context.Context, tx Repository, teamID string) (*teamState, error) {
	team, err := tx.GetTeam(ctx, teamID)
	if errors.Is(err, ErrTeamNotFound) {
		return nil, notFoundError(ReasonTeamNotFound, "team not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}
	invites, err := tx.ListInvites(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("load invites: %w", err)
	}

	st := &teamState{team: team, invites: invites, now: s.now()}
	if err := s.applyExpiry(ctx, tx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// applyExpiry persists every expiry that is due: the team's own window, which
// closes its open invites, and each invite's window.
func (s *Service) applyExpiry(ctx context.Context, tx Repository, st *teamState) error {
	var changed []*MemberInvite
	if teamDue(st.team, st.now) {
		expireTeam(st.team, st.now)
		if err := tx.UpdateTeam(ctx, st.team); err != nil {
			return fmt.Errorf("store team expiry: %w", err)
		}
		st.expiredTeam = true
		changed = closeOpenInvites(st.invites, st.now)
	} else {
		for _, inv := range st.invites {
			if inviteDue(inv, st.now) && expireInvite(inv, st.now) {
				changed = append(changed, inv)
			}
		}
	}
	for _, inv := range changed {
		if err := tx.UpdateInvite(ctx, inv); err != nil {
			return fmt.Errorf("store invite expiry: %w", err)
		}
	}
	st.expiredInvites = len(changed)
	if st.expiredTeam || len(changed) > 0 {
		s.logger(ctx).Info("expiry applied",
			"team_id", st.team.ID, "team_expired", st.expiredTeam, "invites_expired", len(changed))
	}
	return nil
}

func (s *Service) inviteByToken(ctx context.Context, token string) (*MemberInvite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, notFoundError(ReasonInviteNotFound, "invite not found")
	}
	inv, err := s.repo.GetInviteByToken(ctx, token)
	if errors.Is(err, ErrInviteNotFound) {
		return nil, notFoundError(ReasonInviteNotFound, "invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}
	return inv, nil
}

// checkOpen rejects invites that can no longer be acted on. The order
// matters: an expired window wins over everything but a completed verification.
func checkOpen(inv *MemberInvite, team *TeamRegistration) error {
	switch {
	case inv == nil:
		return notFoundError(ReasonInviteNotFound, "invite not found")
	case inv.Status == InviteReplaced:
		return goneError(ReasonInviteReplaced, "this invite has been replaced")
	case inv.IsVerified:
		return conflictError(ReasonAlreadyVerified, "this invite is already verified")
	case inv.Status == InviteExpired:
		return goneError(ReasonInviteExpired, "this invite has expired")
	case team.Status.Terminal():
		return conflictError(ReasonTeamClosed, "the team registration is "+string(team.Status))
	}
	return nil
}

func (s *Service) requireCaptain(caller Caller, team *TeamRegistration) error {
	if caller.UserID == "" || caller.UserID != team.CaptainID {
		return forbiddenError(ReasonNotCaptain, "only the team captain can do this")
	}
	return nil
}
