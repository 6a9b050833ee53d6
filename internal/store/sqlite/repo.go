package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
)

var openStatuses = []string{string(teams.TeamPending), string(teams.TeamPartiallyVerified)}

// repo implements teams.Repository. When inTx is set, db is a transaction
// handle and nested WithinTx calls reuse it.
type repo struct {
	db   *gorm.DB
	inTx bool
}

func (r *repo) CreateTeam(ctx context.Context, team *teams.TeamRegistration, invites []*teams.MemberInvite) error {
	return r.WithinTx(ctx, func(txr teams.Repository) error {
		tx := txr.(*repo).db
		if err := tx.Create(teamToRow(team)).Error; err != nil {
			return translate(err)
		}
		if len(invites) == 0 {
			return nil
		}
		rows := make([]*inviteRow, 0, len(invites))
		for _, inv := range invites {
			rows = append(rows, inviteToRow(inv))
		}
		return translate(tx.Create(rows).Error)
	})
}

func (r *repo) GetTeam(ctx context.Context, id string) (*teams.TeamRegistration, error) {
	var row teamRow
	err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, teams.ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *repo) UpdateTeam(ctx context.Context, team *teams.TeamRegistration) error {
	row := teamToRow(team)
	res := r.db.WithContext(ctx).Model(&teamRow{}).Where("id = ?", team.ID).Updates(map[string]any{
		"team_name":     row.TeamName,
		"team_size":     row.TeamSize,
		"total_amount":  row.TotalAmount,
		"paid_amount":   row.PaidAmount,
		"status":        row.Status,
		"expires_at":    row.ExpiresAt,
		"cancel_reason": row.CancelReason,
		"cancelled_at":  row.CancelledAt,
		"updated_at":    row.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return teams.ErrTeamNotFound
	}
	return nil
}

func (r *repo) ListTeamsByCaptain(ctx context.Context, captainID string) ([]*teams.TeamRegistration, error) {
	var rows []teamRow
	err := r.db.WithContext(ctx).
		Where("captain_id = ?", captainID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return teamModels(rows), nil
}

func (r *repo) ListDueTeams(ctx context.Context, now time.Time, limit int) ([]*teams.TeamRegistration, error) {
	q := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", openStatuses, toNanos(now)).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []teamRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return teamModels(rows), nil
}

func (r *repo) CreateInvite(ctx context.Context, inv *teams.MemberInvite) error {
	return r.WithinTx(ctx, func(txr teams.Repository) error {
		tx := txr.(*repo).db
		var n int64
		if err := tx.Model(&teamRow{}).Where("id = ?", inv.TeamID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return teams.ErrTeamNotFound
		}
		return translate(tx.Create(inviteToRow(inv)).Error)
	})
}

func (r *repo) GetInviteByToken(ctx context.Context, token string) (*teams.MemberInvite, error) {
	var row inviteRow
	err := r.db.WithContext(ctx).First(&row, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, teams.ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// UpdateInvite writes every mutable column. Token and team are fixed at creation.
func (r *repo) UpdateInvite(ctx context.Context, inv *teams.MemberInvite) error {
	row := inviteToRow(inv)
	res := r.db.WithContext(ctx).Model(&inviteRow{}).Where("id = ?", inv.ID).Updates(map[string]any{
		"email":            row.Email,
		"role":             row.Role,
		"is_verified":      row.IsVerified,
		"verified_at":      row.VerifiedAt,
		"verified_by":      row.VerifiedBy,
		"otp_hash":         row.OTPHash,
		"otp_expires_at":   row.OTPExpiresAt,
		"otp_attempts":     row.OTPAttempts,
		"last_otp_sent_at": row.LastOTPSentAt,
		"expires_at":       row.ExpiresAt,
		"status":           row.Status,
		"updated_at":       row.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return teams.ErrInviteNotFound
	}
	return nil
}

func (r *repo) ListInvites(ctx context.Context, teamID string) ([]*teams.MemberInvite, error) {
	var rows []inviteRow
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at ASC, rowid ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return inviteModels(rows), nil
}

func (r *repo) ListDueInvites(ctx context.Context, now time.Time, limit int) ([]*teams.MemberInvite, error) {
	q := r.db.WithContext(ctx).
		Where("is_verified = ? AND status = ? AND expires_at < ?", false, string(teams.InviteInvited), toNanos(now)).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []inviteRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return inviteModels(rows), nil
}

func (r *repo) InviteCounts(ctx context.Context, teamIDs []string) (map[string]teams.InviteCounts, error) {
	out := make(map[string]teams.InviteCounts, len(teamIDs))
	if len(teamIDs) == 0 {
		return out, nil
	}
	for _, id := range teamIDs {
		out[id] = teams.InviteCounts{}
	}

	var rows []struct {
		TeamID   string
		Total    int
		Verified int
	}
	err := r.db.WithContext(ctx).Model(&inviteRow{}).
		Select("team_id, COUNT(*) AS total, SUM(CASE WHEN is_verified THEN 1 ELSE 0 END) AS verified").
		Where("team_id IN ? AND status <> ?", teamIDs, string(teams.InviteReplaced)).
		Group("team_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TeamID] = teams.InviteCounts{Total: row.Total, Verified: row.Verified}
	}
	return out, nil
}

// IncrementAttempts is a single conditional UPDATE; the WHERE clause holds the limit.
func (r *repo) IncrementAttempts(ctx context.Context, inviteID string, limit int) (int, error) {
	var n int
	err := r.WithinTx(ctx, func(txr teams.Repository) error {
		tx := txr.(*repo).db
		res := tx.Model(&inviteRow{}).
			Where("id = ? AND otp_attempts < ?", inviteID, limit).
			UpdateColumn("otp_attempts", gorm.Expr("otp_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}

		var row inviteRow
		err := tx.Select("otp_attempts").First(&row, "id = ?", inviteID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return teams.ErrInviteNotFound
		}
		if err != nil {
			return err
		}
		n = row.OTPAttempts
		if res.RowsAffected == 0 {
			return teams.ErrAttemptsExhausted
		}
		return nil
	})
	return n, err
}

func (r *repo) WithinTx(ctx context.Context, fn func(tx teams.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repo{db: tx, inTx: true})
	})
}

// translate maps driver errors onto the repository's sentinel errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", teams.ErrDuplicateToken, err)
	}
	return err
}

func teamModels(rows []teamRow) []*teams.TeamRegistration {
	out := make([]*teams.TeamRegistration, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

func inviteModels(rows []inviteRow) []*teams.MemberInvite {
	out := make([]*teams.MemberInvite, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out
}

var _ teams.Repository = (*repo)(nil)
