package teams

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
)

// TeamBrief is the part of a team shown on the invite landing page.
type TeamBrief struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CaptainName string     `json:"captain_name"`
	TeamSize    int        `json:"team_size"`
	Status      TeamStatus `json:"status"`
}

// InviteView is the public projection of an invite. It never carries the
// code or the attempt counter.
type InviteView struct {
	Email     string        `json:"email"`
	Role      Role          `json:"role"`
	Status    InviteStatus  `json:"status"`
	ExpiresAt time.Time     `json:"expires_at"`
	Team      TeamBrief     `json:"team"`
	Event     EventSnapshot `json:"event"`
}

// GetByToken resolves an invite for the unauthenticated landing page. An
// invite whose window has passed is marked expired before Gone is returned.
func (s *Service) GetByToken(ctx context.Context, token string) (*InviteView, error) {
	inv, err := s.inviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	team, err := s.repo.GetTeam(ctx, inv.TeamID)
	if err != nil {
		return nil, fmt.Errorf("load team: %w", err)
	}

	now := s.now()
	if effectiveInviteStatus(inv, team, now) != inv.Status {
		// Persist the expiry under the team lock, then report on the stored state.
		err := s.inTeam(ctx, inv.TeamID, func(tx Repository, st *teamState) error {
			inv, team = st.invite(inv.ID), st.team
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := checkOpen(inv, team); err != nil {
		return nil, err
	}
	return &InviteView{
		Email:     inv.Email,
		Role:      inv.Role,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt,
		Team: TeamBrief{
			ID:          team.ID,
			Name:        displayName(team),
			CaptainName: team.CaptainName,
			TeamSize:    team.TeamSize,
			Status:      team.Status,
		},
		Event: team.Event,
	}, nil
}

// IssueResult is returned by IssueCode.
type IssueResult struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueCode sends a fresh one-time code to the invited address. The attempt
// counter is kept across reissues.
func (s *Service) IssueCode(ctx context.Context, caller Caller, token string) (*IssueResult, error) {
	inv, err := s.inviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	code, err := s.tokens.Code(s.cfg.CodeDigits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, err
	}

	var (
		res *IssueResult
		msg notify.Message
	)
	err = s.inTeam(ctx, inv.TeamID, func(tx Repository, st *teamState) error {
		cur := st.invite(inv.ID)
		if err := checkOpen(cur, st.team); err != nil {
			return err
		}
		if !sameEmail(caller.Email, cur.Email) {
			return forbiddenError(ReasonEmailMismatch, "this invite was sent to a different email address")
		}
		if cur.OTPAttempts >= s.cfg.MaxAttempts {
			return rateLimitedError(ReasonAttemptsExhausted, "too many failed attempts for this invite", 0)
		}
		if cur.LastOTPSentAt != nil {
			if wait := s.cfg.ResendCooldown - st.now.Sub(*cur.LastOTPSentAt); wait > 0 {
				return rateLimitedError(ReasonResendCooldown, "a code was sent recently, try again later", wait)
			}
		}

		issueCode(cur, hash, s.cfg.OTPWindow, st.now)
		if err := tx.UpdateInvite(ctx, cur); err != nil {
			return fmt.Errorf("store code: %w", err)
		}
		res = &IssueResult{ExpiresAt: *cur.OTPExpiresAt}
		msg = notify.Message{
			To:   cur.Email,
			Kind: notify.KindVerificationCode,
			Data: map[string]string{
				"code":        code,
				"team_name":   displayName(st.team),
				"event_title": st.team.Event.Title,
				"expires_at":  formatTime(*cur.OTPExpiresAt),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("verification code issued", "team_id", inv.TeamID, "invite_id", inv.ID)
	s.dispatch(ctx, msg)
	return res, nil
}

// VerifyResult is returned by VerifyCode.
type VerifyResult struct {
	TeamStatus    TeamStatus `json:"team_status"`
	VerifiedCount int        `json:"verified_count"`
	TotalCount    int        `json:"total_count"`
}

// VerifyCode checks a submitted code. On a match the invite is verified and
// the team status is recomputed from all of its invites in the same
// transaction, under the team lock.
func (s *Service) VerifyCode(ctx context.Context, caller Caller, token, code string) (*VerifyResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError(ReasonInvalidField, "code is required")
	}
	inv, err := s.inviteByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		res  *VerifyResult
		msgs []notify.Message
	)
	err = s.inTeam(ctx, inv.TeamID, func(tx Repository, st *teamState) error {
		cur := st.invite(inv.ID)
		if err := checkOpen(cur, st.team); err != nil {
			return err
		}
		if !sameEmail(caller.Email, cur.Email) {
			return forbiddenError(ReasonEmailMismatch, "this invite was sent to a different email address")
		}
		if cur.OTPAttempts >= s.cfg.MaxAttempts {
			return rateLimitedError(ReasonAttemptsExhausted, "too many failed attempts for this invite", 0)
		}
		if cur.OTPHash == "" || cur.OTPExpiresAt == nil {
			return badRequestError(ReasonNoCode, "no code is outstanding, request a new code")
		}
		if st.now.After(*cur.OTPExpiresAt) {
			return badRequestError(ReasonCodeExpired, "the code has expired, request a new code")
		}

		if !s.hasher.Matches(cur.OTPHash, code) {
			n, err := tx.IncrementAttempts(ctx, cur.ID, s.cfg.MaxAttempts)
			if errors.Is(err, ErrAttemptsExhausted) {
				return rateLimitedError(ReasonAttemptsExhausted, "too many failed attempts for this invite", 0)
			}
			if err != nil {
				return fmt.Errorf("count attempt: %w", err)
			}
			remaining := s.cfg.MaxAttempts - n
			e := badRequestError(ReasonCodeMismatch, "the code does not match")
			e.AttemptsRemaining = &remaining
			return e
		}

		markVerified(cur, caller.UserID, st.now)
		if err := tx.UpdateInvite(ctx, cur); err != nil {
			return fmt.Errorf("store verification: %w", err)
		}
		if recompute(st.team, st.invites, st.now) {
			if err := tx.UpdateTeam(ctx, st.team); err != nil {
				return fmt.Errorf("store team status: %w", err)
			}
		}

		verified, total, _ := countVerification(st.invites)
		res = &VerifyResult{TeamStatus: st.team.Status, VerifiedCount: verified, TotalCount: total}
		msgs = append(msgs, s.progressMessage(st.team, cur, verified, total))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger(ctx).Info("invite verified",
		"team_id", inv.TeamID, "invite_id", inv.ID, "team_status", string(res.TeamStatus),
		"verified", res.VerifiedCount, "total", res.TotalCount)
	for _, m := range msgs {
		s.dispatch(ctx, m)
	}
	return res, nil
}
