package sqlite

import (
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
)

// Times are stored as Unix nanoseconds so range filters compare integers.

type eventCols struct {
	EventID      string
	Title        string
	Organization string
	Start        int64
	City         string
	Category     string
	LogoURL      string `gorm:"column:logo_url"`
	BannerURL    string `gorm:"column:banner_url"`
	PerPersonFee int64
}

type teamRow struct {
	ID           string `gorm:"primaryKey"`
	EventID      string `gorm:"index"`
	CaptainID    string `gorm:"index"`
	CaptainEmail string
	CaptainName  string
	TeamName     string
	TeamSize     int
	TotalAmount  int64
	PaidAmount   int64
	Status       string    `gorm:"index"`
	ExpiresAt    int64     `gorm:"index"`
	Event        eventCols `gorm:"embedded;embeddedPrefix:event_"`
	CancelReason string
	CancelledAt  *int64
	CreatedAt    int64 `gorm:"autoCreateTime:false"`
	UpdatedAt    int64 `gorm:"autoUpdateTime:false"`
}

func (teamRow) TableName() string { return "team_registrations" }

type inviteRow struct {
	ID            string `gorm:"primaryKey"`
	TeamID        string `gorm:"index;not null"`
	Token         string `gorm:"uniqueIndex;not null"`
	Email         string
	Role          string
	IsVerified    bool
	VerifiedAt    *int64
	VerifiedBy    string
	OTPHash       string `gorm:"column:otp_hash"`
	OTPExpiresAt  *int64 `gorm:"column:otp_expires_at"`
	OTPAttempts   int    `gorm:"column:otp_attempts"`
	LastOTPSentAt *int64 `gorm:"column:last_otp_sent_at"`
	ExpiresAt     int64  `gorm:"index"`
	Status        string `gorm:"index"`
	CreatedAt     int64  `gorm:"autoCreateTime:false"`
	UpdatedAt     int64  `gorm:"autoUpdateTime:false"`
}

func (inviteRow) TableName() string { return "member_invites" }

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func toNanosPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	n := t.UnixNano()
	return &n
}

func fromNanosPtr(n *int64) *time.Time {
	if n == nil {
		return nil
	}
	t := fromNanos(*n)
	return &t
}

func teamToRow(t *teams.TeamRegistration) *teamRow {
	return &teamRow{
		ID:           t.ID,
		EventID:      t.EventID,
		CaptainID:    t.CaptainID,
		CaptainEmail: t.CaptainEmail,
		CaptainName:  t.CaptainName,
		TeamName:     t.TeamName,
		TeamSize:     t.TeamSize,
		TotalAmount:  t.TotalAmount,
		PaidAmount:   t.PaidAmount,
		Status:       string(t.Status),
		ExpiresAt:    toNanos(t.ExpiresAt),
		Event: eventCols{
			EventID:      t.Event.EventID,
			Title:        t.Event.Title,
			Organization: t.Event.Organization,
			Start:        toNanos(t.Event.Start),
			City:         t.Event.City,
			Category:     t.Event.Category,
			LogoURL:      t.Event.LogoURL,
			BannerURL:    t.Event.BannerURL,
			PerPersonFee: t.Event.PerPersonFee,
		},
		CancelReason: t.CancelReason,
		CancelledAt:  toNanosPtr(t.CancelledAt),
		CreatedAt:    toNanos(t.CreatedAt),
		UpdatedAt:    toNanos(t.UpdatedAt),
	}
}

func (r *teamRow) toModel() *teams.TeamRegistration {
	return &teams.TeamRegistration{
		ID:           r.ID,
		EventID:      r.EventID,
		CaptainID:    r.CaptainID,
		CaptainEmail: r.CaptainEmail,
		CaptainName:  r.CaptainName,
		TeamName:     r.TeamName,
		TeamSize:     r.TeamSize,
		TotalAmount:  r.TotalAmount,
		PaidAmount:   r.PaidAmount,
		Status:       teams.TeamStatus(r.Status),
		ExpiresAt:    fromNanos(r.ExpiresAt),
		Event: teams.EventSnapshot{
			EventID:      r.Event.EventID,
			Title:        r.Event.Title,
			Organization: r.Event.Organization,
			Start:        fromNanos(r.Event.Start),
			City:         r.Event.City,
			Category:     r.Event.Category,
			LogoURL:      r.Event.LogoURL,
			BannerURL:    r.Event.BannerURL,
			PerPersonFee: r.Event.PerPersonFee,
		},
		CancelReason: r.CancelReason,
		CancelledAt:  fromNanosPtr(r.CancelledAt),
		CreatedAt:    fromNanos(r.CreatedAt),
		UpdatedAt:    fromNanos(r.UpdatedAt),
	}
}

func inviteToRow(i *teams.MemberInvite) *inviteRow {
	return &inviteRow{
		ID:            i.ID,
		TeamID:        i.TeamID,
		Token:         i.Token,
		Email:         i.Email,
		Role:          string(i.Role),
		IsVerified:    i.IsVerified,
		VerifiedAt:    toNanosPtr(i.VerifiedAt),
		VerifiedBy:    i.VerifiedBy,
		OTPHash:       i.OTPHash,
		OTPExpiresAt:  toNanosPtr(i.OTPExpiresAt),
		OTPAttempts:   i.OTPAttempts,
		LastOTPSentAt: toNanosPtr(i.LastOTPSentAt),
		ExpiresAt:     toNanos(i.ExpiresAt),
		Status:        string(i.Status),
		CreatedAt:     toNanos(i.CreatedAt),
		UpdatedAt:     toNanos(i.UpdatedAt),
	}
}

func (r *inviteRow) toModel() *teams.MemberInvite {
	return &teams.MemberInvite{
		ID:            r.ID,
		TeamID:        r.TeamID,
		Token:         r.Token,
		Email:         r.Email,
		Role:          teams.Role(r.Role),
		IsVerified:    r.IsVerified,
		VerifiedAt:    fromNanosPtr(r.VerifiedAt),
		VerifiedBy:    r.VerifiedBy,
		OTPHash:       r.OTPHash,
		OTPExpiresAt:  fromNanosPtr(r.OTPExpiresAt),
		OTPAttempts:   r.OTPAttempts,
		LastOTPSentAt: fromNanosPtr(r.LastOTPSentAt),
		ExpiresAt:     fromNanos(r.ExpiresAt),
		Status:        teams.InviteStatus(r.Status),
		CreatedAt:     fromNanos(r.CreatedAt),
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}
}
