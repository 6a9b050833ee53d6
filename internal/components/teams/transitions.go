package teams

import "time"

// The functions in this file are the complete set of state transitions for
// invites and teams. Every operation calls them explicitly at its start, so
// expiry is applied the same way whether triggered by a request or the sweeper.

// inviteDue reports whether an open invite's window has passed.
func inviteDue(inv *MemberInvite, now time.Time) bool {
	return !inv.IsVerified && inv.Status == InviteInvited && now.After(inv.ExpiresAt)
}

// teamDue reports whether a non-final team's window has passed.
func teamDue(t *TeamRegistration, now time.Time) bool {
	if t.Status.Terminal() || t.Status == TeamConfirmed {
		return false
	}
	return now.After(t.ExpiresAt)
}

// expireInvite moves an open invite to expired. It reports whether anything changed.
func expireInvite(inv *MemberInvite, now time.Time) bool {
	if inv.IsVerified || inv.Status != InviteInvited {
		return false
	}
	inv.Status = InviteExpired
	inv.UpdatedAt = now
	return true
}

// closeOpenInvites expires every unverified, still-open invite and returns
// the ones it changed. Verified invites are left as a historical record.
func closeOpenInvites(invites []*MemberInvite, now time.Time) []*MemberInvite {
	var changed []*MemberInvite
	for _, inv := range invites {
		if expireInvite(inv, now) {
			changed = append(changed, inv)
		}
	}
	return changed
}

// cancelTeam marks the team cancelled. Callers check Terminal first.
func cancelTeam(t *TeamRegistration, reason string, now time.Time) {
	t.Status = TeamCancelled
	t.CancelReason = reason
	t.CancelledAt = timePtr(now)
	t.UpdatedAt = now
}

// expireTeam marks the team expired. Callers check teamDue first.
func expireTeam(t *TeamRegistration, now time.Time) {
	t.Status = TeamExpired
	t.UpdatedAt = now
}

// reopenTeam returns a team closed by its window to pending so recompute
// can derive its status again. It reports whether anything changed.
func reopenTeam(t *TeamRegistration, now time.Time) bool {
	if t.Status != TeamExpired {
		return false
	}
	t.Status = TeamPending
	t.UpdatedAt = now
	return true
}

// markVerified applies a successful code match.
func markVerified(inv *MemberInvite, by string, now time.Time) {
	inv.IsVerified = true
	inv.VerifiedAt = timePtr(now)
	inv.VerifiedBy = by
	inv.OTPHash = ""
	inv.OTPExpiresAt = nil
	inv.OTPAttempts = 0
	inv.Status = InviteVerified
	inv.UpdatedAt = now
}

// issueCode records a freshly issued code. Attempts are kept.
func issueCode(inv *MemberInvite, hash string, window time.Duration, now time.Time) {
	inv.OTPHash = hash
	inv.OTPExpiresAt = timePtr(now.Add(window))
	inv.LastOTPSentAt = timePtr(now)
	inv.UpdatedAt = now
}

// reopenInvite restarts the invite window, reversing an expired marker.
func reopenInvite(inv *MemberInvite, window time.Duration, now time.Time) {
	inv.ExpiresAt = now.Add(window)
	inv.Status = InviteInvited
	inv.UpdatedAt = now
}

// countVerification scans the live invites of a team.
func countVerification(invites []*MemberInvite) (verified, total, membersVerified int) {
	for _, inv := range invites {
		if inv.Status == InviteReplaced {
			continue
		}
		total++
		if inv.IsVerified {
			verified++
			if inv.Role == RoleMember {
				membersVerified++
			}
		}
	}
	return verified, total, membersVerified
}

// deriveStatus is the aggregate status as a pure function of the invites.
func deriveStatus(invites []*MemberInvite) TeamStatus {
	verified, total, membersVerified := countVerification(invites)
	switch {
	case total > 0 && verified == total:
		return TeamConfirmed
	case membersVerified > 0:
		return TeamPartiallyVerified
	default:
		return TeamPending
	}
}

// recompute sets the team's status from its invites unless the team is in a
// terminal state. It reports whether the status changed.
func recompute(t *TeamRegistration, invites []*MemberInvite, now time.Time) bool {
	if t.Status.Terminal() {
		return false
	}
	next := deriveStatus(invites)
	if next == t.Status {
		return false
	}
	t.Status = next
	t.UpdatedAt = now
	return true
}

// effectiveTeamStatus is the status a reader should see, including an expiry
// that has not been persisted yet.
func effectiveTeamStatus(t *TeamRegistration, now time.Time) TeamStatus {
	if teamDue(t, now) {
		return TeamExpired
	}
	return t.Status
}

// effectiveInviteStatus is the invite counterpart of effectiveTeamStatus.
func effectiveInviteStatus(inv *MemberInvite, team *TeamRegistration, now time.Time) InviteStatus {
	if inviteDue(inv, now) {
		return InviteExpired
	}
	if !inv.IsVerified && inv.Status == InviteInvited && teamDue(team, now) {
		return InviteExpired
	}
	return inv.Status
}
