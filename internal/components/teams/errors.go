package teams

import (
	"errors"
	"fmt"
	"time"
)

// Repository sentinels. Store drivers map their native errors onto these.
var (
	ErrTeamNotFound      = errors.New("team not found")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrDuplicateToken    = errors.New("invite token already exists")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
)

// Kind classifies domain errors. Values are stable and machine-checkable.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindGone        Kind = "gone"
	KindConflict    Kind = "conflict"
	KindForbidden   Kind = "forbidden"
	KindRateLimited Kind = "rate_limited"
	KindBadRequest  Kind = "bad_request"
)

// Reasons refine a Kind.
const (
	ReasonInvalidTeamSize   = "invalid_team_size"
	ReasonInviteCount       = "invite_count_mismatch"
	ReasonInvalidEmail      = "invalid_email"
	ReasonDuplicateEmail    = "duplicate_email"
	ReasonSelfInvite        = "self_invite"
	ReasonInvalidField      = "invalid_field"
	ReasonNotTeamEvent      = "not_team_event"
	ReasonSizeOutOfBounds   = "team_size_out_of_bounds"
	ReasonEventNotFound     = "event_not_found"
	ReasonTeamNotFound      = "team_not_found"
	ReasonInviteNotFound    = "invite_not_found"
	ReasonInviteExpired     = "invite_expired"
	ReasonInviteReplaced    = "invite_replaced"
	ReasonAlreadyVerified   = "already_verified"
	ReasonAlreadyCancelled  = "already_cancelled"
	ReasonTeamClosed        = "team_closed"
	ReasonEmailMismatch     = "email_mismatch"
	ReasonNotCaptain        = "not_captain"
	ReasonNotTeamMember     = "not_team_member"
	ReasonResendCooldown    = "resend_cooldown"
	ReasonAttemptsExhausted = "attempts_exhausted"
	ReasonNoCode            = "no_outstanding_code"
	ReasonCodeExpired       = "code_expired"
	ReasonCodeMismatch      = "code_mismatch"
)

// Error is a domain error surfaced to callers.
type Error struct {
	Kind    Kind
	Reason  string
	Message string

	// RetryAfter is set for rate_limited errors with a known wait.
	RetryAfter time.Duration
	// AttemptsRemaining is set for code mismatches.
	AttemptsRemaining *int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the Kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the Reason of a domain error, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

func newError(kind Kind, reason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func validationError(reason, format string, args ...any) *Error {
	return newError(KindValidation, reason, format, args...)
}

func notFoundError(reason, msg string) *Error { return newError(KindNotFound, reason, "%s", msg) }
func goneError(reason, msg string) *Error { return newError(KindGone, reason, "%s", msg) }
func conflictError(reason, msg string) *Error { return newError(KindConflict, reason, "%s", msg) }
func forbiddenError(reason, msg string) *Error { return newError(KindForbidden, reason, "%s", msg) }

func badRequestError(reason, msg string) *Error {
	return newError(KindBadRequest, reason, "%s", msg)
}

func rateLimitedError(reason, msg string, retryAfter time.Duration) *Error {
	e := newError(KindRateLimited, reason, "%s", msg)
	e.RetryAfter = retryAfter
	return e
}
