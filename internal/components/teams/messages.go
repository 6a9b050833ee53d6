package teams

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/appctx"
)

func (s *Service) invitationMessage(team *TeamRegistration, inv *MemberInvite) notify.Message {
	return notify.Message{
		To:   inv.Email,
		Kind: notify.KindTeamInvitation,
		Data: map[string]string{
			"team_name":    displayName(team),
			"captain_name": team.CaptainName,
			"event_title":  team.Event.Title,
			"verify_url":   s.cfg.InviteBaseURL + inv.Token,
			"expires_at":   formatTime(inv.ExpiresAt),
		},
	}
}

func (s *Service) progressMessage(team *TeamRegistration, inv *MemberInvite, verified, total int) notify.Message {
	if team.Status == TeamConfirmed {
		return notify.Message{
			To:   team.CaptainEmail,
			Kind: notify.KindTeamConfirmed,
			Data: map[string]string{
				"team_name":   displayName(team),
				"event_title": team.Event.Title,
				"total":       strconv.Itoa(total),
			},
		}
	}
	return notify.Message{
		To:   team.CaptainEmail,
		Kind: notify.KindTeamProgress,
		Data: map[string]string{
			"team_name":    displayName(team),
			"member_email": inv.Email,
			"verified":     strconv.Itoa(verified),
			"total":        strconv.Itoa(total),
		},
	}
}

// dispatch hands msg to the notifier after the state change has committed.
// Failures are logged and reported to the caller only as a boolean.
func (s *Service) dispatch(ctx context.Context, msg notify.Message) bool {
	if err := s.notifier.Dispatch(context.WithoutCancel(ctx), msg); err != nil {
		s.logger(ctx).Warn("notification dispatch failed", "kind", string(msg.Kind), "error", err)
		return false
	}
	return true
}

// logger prefers the request-scoped logger.
func (s *Service) logger(ctx context.Context) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		return l
	}
	return s.log
}

func displayName(t *TeamRegistration) string {
	if t.TeamName != "" {
		return t.TeamName
	}
	return t.CaptainName + "'s team"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
