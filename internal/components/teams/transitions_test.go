package teams

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func memberInvite(verified bool) *MemberInvite {
	inv := &MemberInvite{Role: RoleMember, Status: InviteInvited, ExpiresAt: t0.Add(time.Hour)}
	if verified {
		inv.IsVerified = true
		inv.Status = InviteVerified
	}
	return inv
}

func captainInvite() *MemberInvite {
	inv := memberInvite(true)
	inv.Role = RoleCaptain
	return inv
}

func TestDeriveStatus(t *testing.T) {
	replaced := memberInvite(false)
	replaced.Status = InviteReplaced

	tests := []struct {
		name    string
		invites []*MemberInvite
		want    TeamStatus
	}{
		{"captain only verified", []*MemberInvite{captainInvite(), memberInvite(false), memberInvite(false)}, TeamPending},
		{"one member verified", []*MemberInvite{captainInvite(), memberInvite(true), memberInvite(false)}, TeamPartiallyVerified},
		{"all verified", []*MemberInvite{captainInvite(), memberInvite(true), memberInvite(true)}, TeamConfirmed},
		{"replaced invite ignored", []*MemberInvite{captainInvite(), memberInvite(true), replaced}, TeamConfirmed},
		{"no invites", nil, TeamPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveStatus(tt.invites); got != tt.want {
				t.Errorf("deriveStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecompute_TerminalIsFinal(t *testing.T) {
	all := []*MemberInvite{captainInvite(), memberInvite(true)}
	for _, status := range []TeamStatus{TeamCancelled, TeamExpired} {
		team := &TeamRegistration{Status: status}
		if recompute(team, all, t0) {
			t.Errorf("recompute changed a %s team", status)
		}
		if team.Status != status {
			t.Errorf("status = %s, want %s", team.Status, status)
		}
	}

	team := &TeamRegistration{Status: TeamConfirmed}
	if recompute(team, all, t0) {
		t.Error("recompute reported a change for an already confirmed team")
	}
}

func TestInviteDue(t *testing.T) {
	open := memberInvite(false)
	if inviteDue(open, t0.Add(time.Hour)) {
		t.Error("due exactly at ExpiresAt")
	}
	if !inviteDue(open, t0.Add(time.Hour+time.Nanosecond)) {
		t.Error("not due after ExpiresAt")
	}
	if inviteDue(memberInvite(true), t0.Add(48*time.Hour)) {
		t.Error("verified invite reported due")
	}
}

func TestTeamDue(t *testing.T) {
	later := t0.Add(2 * time.Hour)
	for status, want := range map[TeamStatus]bool{
		TeamPending:           true,
		TeamPartiallyVerified: true,
		TeamConfirmed:         false,
		TeamCancelled:         false,
		TeamExpired:           false,
	} {
		team := &TeamRegistration{Status: status, ExpiresAt: t0}
		if got := teamDue(team, later); got != want {
			t.Errorf("teamDue(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCloseOpenInvites_KeepsVerified(t *testing.T) {
	verified := memberInvite(true)
	open := memberInvite(false)
	replaced := memberInvite(false)
	replaced.Status = InviteReplaced

	changed := closeOpenInvites([]*MemberInvite{verified, open, replaced}, t0)
	if len(changed) != 1 || changed[0] != open {
		t.Fatalf("changed = %v, want only the open invite", changed)
	}
	if open.Status != InviteExpired {
		t.Errorf("open invite status = %s", open.Status)
	}
	if !verified.IsVerified || verified.Status != InviteVerified {
		t.Errorf("verified invite touched: %+v", verified)
	}
	if replaced.Status != InviteReplaced {
		t.Errorf("replaced invite touched: %s", replaced.Status)
	}
}

func TestMarkVerified_ClearsCode(t *testing.T) {
	inv := memberInvite(false)
	issueCode(inv, "hash", 10*time.Minute, t0)
	inv.OTPAttempts = 3

	markVerified(inv, "u1", t0.Add(time.Minute))
	if !inv.IsVerified || inv.Status != InviteVerified || inv.VerifiedBy != "u1" {
		t.Errorf("not verified: %+v", inv)
	}
	if inv.OTPHash != "" || inv.OTPExpiresAt != nil || inv.OTPAttempts != 0 {
		t.Errorf("code state not cleared: %+v", inv)
	}
	if inv.LastOTPSentAt == nil {
		t.Error("LastOTPSentAt should be kept")
	}
}

func TestIssueCode_KeepsAttempts(t *testing.T) {
	inv := memberInvite(false)
	inv.OTPAttempts = 2
	issueCode(inv, "h", 10*time.Minute, t0)
	if inv.OTPAttempts != 2 {
		t.Errorf("attempts = %d, want 2", inv.OTPAttempts)
	}
	if !inv.OTPExpiresAt.Equal(t0.Add(10 * time.Minute)) {
		t.Errorf("OTPExpiresAt = %v", inv.OTPExpiresAt)
	}
}

func TestEffectiveInviteStatus(t *testing.T) {
	team := &TeamRegistration{Status: TeamPending, ExpiresAt: t0.Add(time.Hour)}
	inv := memberInvite(false)
	inv.ExpiresAt = t0.Add(3 * time.Hour)

	if got := effectiveInviteStatus(inv, team, t0); got != InviteInvited {
		t.Errorf("before expiry: %s", got)
	}
	// The team window closes first and takes the open invite with it.
	if got := effectiveInviteStatus(inv, team, t0.Add(2*time.Hour)); got != InviteExpired {
		t.Errorf("after team expiry: %s", got)
	}
	if inv.Status != InviteInvited {
		t.Error("projection mutated the invite")
	}
	if got := effectiveTeamStatus(team, t0.Add(2*time.Hour)); got != TeamExpired {
		t.Errorf("effective team status = %s", got)
	}
}
