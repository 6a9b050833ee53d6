// Package teams implements team registration with per-member email
// verification: invite tokens, one-time codes, and the aggregate team status
// derived from every member's verification state.
package teams

import "time"

// TeamStatus is the lifecycle state of a TeamRegistration.
type TeamStatus string

const (
	TeamPending           TeamStatus = "pending"
	TeamPartiallyVerified TeamStatus = "partially_verified"
	TeamConfirmed         TeamStatus = "confirmed"
	TeamCancelled         TeamStatus = "cancelled"
	TeamExpired           TeamStatus = "expired"
)

// Terminal reports whether the status blocks any further recomputation.
func (s TeamStatus) Terminal() bool {
	return s == TeamCancelled || s == TeamExpired
}

// InviteStatus is the state of a MemberInvite.
type InviteStatus string

const (
	InviteInvited  InviteStatus = "invited"
	InviteVerified InviteStatus = "verified"
	InviteExpired  InviteStatus = "expired"
	InviteReplaced InviteStatus = "replaced"
)

// Role distinguishes the captain's own invite from invited members.
type Role string

const (
	RoleCaptain Role = "captain"
	RoleMember  Role = "member"
)

// EventSnapshot is the event's display data as it was when the team was
// created. It is copied by value and never refreshed.
type EventSnapshot struct {
	EventID      string    `json:"event_id"`
	Title        string    `json:"title"`
	Organization string    `json:"organization"`
	Start        time.Time `json:"start"`
	City         string    `json:"city"`
	Category     string    `json:"category"`
	LogoURL      string    `json:"logo_url,omitempty"`
	BannerURL    string    `json:"banner_url,omitempty"`
	PerPersonFee int64     `json:"per_person_fee"`
}

// TeamRegistration is the captain-owned aggregate.
// Amounts are in minor currency units.
type TeamRegistration struct {
	ID           string
	EventID      string
	CaptainID    string
	CaptainEmail string
	CaptainName  string
	TeamName     string
	TeamSize     int
	TotalAmount  int64
	PaidAmount   int64
	Status       TeamStatus
	ExpiresAt    time.Time
	Event        EventSnapshot
	CancelReason string
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MemberInvite tracks one person's verification for a team, the captain included.
type MemberInvite struct {
	ID     string
	TeamID string
	Token  string
	Email  string
	Role   Role

	IsVerified bool
	VerifiedAt *time.Time
	VerifiedBy string

	// OTPHash is the hash of the outstanding code; empty when none is outstanding.
	OTPHash       string
	OTPExpiresAt  *time.Time
	OTPAttempts   int
	LastOTPSentAt *time.Time

	ExpiresAt time.Time
	Status    InviteStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the team.
func (t *TeamRegistration) Clone() *TeamRegistration {
	c := *t
	c.CancelledAt = cloneTime(t.CancelledAt)
	return &c
}

// Clone returns a deep copy of the invite.
func (i *MemberInvite) Clone() *MemberInvite {
	c := *i
	c.VerifiedAt = cloneTime(i.VerifiedAt)
	c.OTPExpiresAt = cloneTime(i.OTPExpiresAt)
	c.LastOTPSentAt = cloneTime(i.LastOTPSentAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time { return &t }

// Caller is the authenticated identity performing an operation.
type Caller struct {
	UserID      string
	Email       string
	DisplayName string
}

// InviteCounts summarizes a team's live invites (replaced ones excluded).
type InviteCounts struct {
	Total    int
	Verified int
}
