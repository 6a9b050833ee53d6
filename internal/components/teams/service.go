package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/events"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/notify"
	"github.com/MahdiBaghbani/teamverify-go/internal/components/tokens"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/cache"
	"github.com/MahdiBaghbani/teamverify-go/internal/platform/logutil"
)

const (
	maxTeamNameLen = 100
	maxReasonLen   = 500
)

// Config holds the timing and abuse limits of the verification flow.
type Config struct {
	InviteWindow   time.Duration
	OTPWindow      time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	CodeDigits     int
	// LockTTL bounds how long a crashed holder can keep a team locked.
	LockTTL time.Duration
	// InviteBaseURL is prefixed to the token in invitation links.
	InviteBaseURL string
	// TokenRetries is how often creation regenerates tokens after a collision.
	TokenRetries int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.InviteWindow == 0 {
		c.InviteWindow = 72 * time.Hour
	}
	if c.OTPWindow == 0 {
		c.OTPWindow = 10 * time.Minute
	}
	if c.ResendCooldown == 0 {
		c.ResendCooldown = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.CodeDigits == 0 {
		c.CodeDigits = 6
	}
	if c.LockTTL == 0 {
		c.LockTTL = 10 * time.Second
	}
	if c.TokenRetries == 0 {
		c.TokenRetries = 3
	}
}

// Deps are the collaborators of a Service. Repo, Events and Locker are required.
type Deps struct {
	Repo     Repository
	Events   events.Directory
	Locker   cache.Locker
	Tokens   tokens.Generator
	Hasher   tokens.Hasher
	Notifier notify.Dispatcher
	Log      *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Service implements team creation, invite verification and housekeeping.
type Service struct {
	cfg      Config
	repo     Repository
	events   events.Directory
	locker   cache.Locker
	tokens   tokens.Generator
	hasher   tokens.Hasher
	notifier notify.Dispatcher
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	cfg.ApplyDefaults()
	if deps.Repo == nil {
		return nil, errors.New("teams: repository is required")
	}
	if deps.Events == nil {
		return nil, errors.New("teams: event directory is required")
	}
	if deps.Locker == nil {
		return nil, errors.New("teams: locker is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("teams: max attempts must be positive, got %d", cfg.MaxAttempts)
	}

	s := &Service{
		cfg:      cfg,
		repo:     deps.Repo,
		events:   deps.Events,
		locker:   deps.Locker,
		tokens:   deps.Tokens,
		hasher:   deps.Hasher,
		notifier: deps.Notifier,
		log:      logutil.NoopIfNil(deps.Log),
		now:      deps.Now,
		newID:    deps.NewID,
	}
	if s.tokens == nil {
		s.tokens = tokens.NewRandom()
	}
	if s.hasher == nil {
		h, err := tokens.NewBcrypt(0)
		if err != nil {
			return nil, err
		}
		s.hasher = h
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog(s.log, false)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	return s, nil
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Dispatch statuses reported per invite on creation.
const (
	DispatchSent   = "dispatched"
	DispatchFailed = "failed"
)

// CreateInput is the captain's request.
type CreateInput struct {
	EventID      string   `json:"event_id"`
	TeamSize     int      `json:"team_size"`
	TeamName     string   `json:"team_name,omitempty"`
	InviteEmails []string `json:"invite_emails"`
}

// InviteDispatch reports whether an invitation was handed to the dispatcher.
type InviteDispatch struct {
	Email  string `json:"email"`
	Status string `json:"status"`
}

// CreateResult is returned by Create.
type CreateResult struct {
	TeamID      string           `json:"team_id"`
	TotalAmount int64            `json:"total_amount"`
	Status      TeamStatus       `json:"status"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Invites     []InviteDispatch `json:"invites"`
}

// Create registers a team, its captain invite and one invite per email.
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (*CreateResult, error) {
	captainEmail, err := NormalizeEmail(caller.Email)
	if err != nil {
		return nil, validationError(ReasonInvalidEmail, "caller has no valid email address")
	}
	in.EventID = strings.TrimSpace(in.EventID)
	if in.EventID == "" {
		return nil, validationError(ReasonInvalidField, "event_id is required")
	}
	in.TeamName = strings.TrimSpace(in.TeamName)
	if len(in.TeamName) > maxTeamNameLen {
		return nil, validationError(ReasonInvalidField, "team_name must be at most %d characters", maxTeamNameLen)
	}
	if in.TeamSize < 2 {
		return nil, validationError(ReasonInvalidTeamSize, "team_size must be at least 2")
	}
	if len(in.InviteEmails) != in.TeamSize-1 {
		return nil, validationError(ReasonInviteCount,
			"expected %d invite emails for a team of %d, got %d", in.TeamSize-1, in.TeamSize, len(in.InviteEmails))
	}

	emails := make([]string, 0, len(in.InviteEmails))
	seen := make(map[string]bool, len(in.InviteEmails))
	for _, raw := range in.InviteEmails {
		e, err := NormalizeEmail(raw)
		if err != nil {
			return nil, validationError(ReasonInvalidEmail, "invalid invite email %q", raw)
		}
		if e == captainEmail {
			return nil, validationError(ReasonSelfInvite, "the captain cannot invite their own email")
		}
		if seen[e] {
			return nil, validationError(ReasonDuplicateEmail, "email %s is listed more than once", e)
		}
		seen[e] = true
		emails = append(emails, e)
	}

	ev, err := s.events.Get(ctx, in.EventID)
	if errors.Is(err, events.ErrNotFound) {
		return nil, notFoundError(ReasonEventNotFound, "event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !ev.IsTeamEvent {
		return nil, validationError(ReasonNotTeamEvent, "event %s does not accept team registrations", ev.ID)
	}
	if (ev.TeamMin > 0 && in.TeamSize < ev.TeamMin) || (ev.TeamMax > 0 && in.TeamSize > ev.TeamMax) {
		return nil, validationError(ReasonSizeOutOfBounds,
			"team_size %d is outside the event's bounds [%d,%d]", in.TeamSize, ev.TeamMin, ev.TeamMax)
	}

	now := s.now()
	captainName := strings.TrimSpace(caller.DisplayName)
	if captainName == "" {
		captainName = captainEmail
	}
	team := &TeamRegistration{
		ID:           s.newID(),
		EventID:      ev.ID,
		CaptainID:    caller.UserID,
		CaptainEmail: captainEmail,
		CaptainName:  captainName,
		TeamName:     in.TeamName,
		TeamSize:     in.TeamSize,
		TotalAmount:  ev.PerPersonFee * int64(in.TeamSize),
		Status:       TeamPending,
		ExpiresAt:    now.Add(s.cfg.InviteWindow),
		Event:        snapshotOf(ev),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	invites := make([]*MemberInvite, 0, in.TeamSize)
	invites = append(invites, &MemberInvite{
		ID:         s.newID(),
		TeamID:     team.ID,
		Email:      captainEmail,
		Role:       RoleCaptain,
		IsVerified: true,
		VerifiedAt: timePtr(now),
		VerifiedBy: caller.UserID,
		ExpiresAt:  team.ExpiresAt,
		Status:     InviteVerified,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	for _, e := range emails {
		invites = append(invites, &MemberInvite{
			ID:        s.newID(),
			TeamID:    team.ID,
			Email:     e,
			Role:      RoleMember,
			ExpiresAt: team.ExpiresAt,
			Status:    InviteInvited,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.createWithTokens(ctx, team, invites); err != nil {
		return nil, err
	}

	s.logger(ctx).Info("team registration created",
		"team_id", team.ID, "event_id", team.EventID, "team_size", team.TeamSize)

	res := &CreateResult{
		TeamID:      team.ID,
		TotalAmount: team.TotalAmount,
		Status:      team.Status,
		ExpiresAt:   team.ExpiresAt,
		Invites:     make([]InviteDispatch, 0, len(emails)),
	}
	for _, inv := range invites[1:] {
		status := DispatchSent
		if !s.dispatch(ctx, s.invitationMessage(team, inv)) {
			status = DispatchFailed
		}
		res.Invites = append(res.Invites, InviteDispatch{Email: inv.Email, Status: status})
	}
	return res, nil
}

// createWithTokens assigns a token to every invite, the captain's included,
// and stores the team. All tokens are regenerated if the store reports a collision.
func (s *Service) createWithTokens(ctx context.Context, team *TeamRegistration, invites []*MemberInvite) error {
	for attempt := 0; ; attempt++ {
		for _, inv := range invites {
			tok, err := s.tokens.InviteToken()
			if err != nil {
				return fmt.Errorf("generate invite token: %w", err)
			}
			inv.Token = tok
		}
		err := s.repo.CreateTeam(ctx, team, invites)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrDuplicateToken) || attempt >= s.cfg.TokenRetries {
			return fmt.Errorf("store team registration: %w", err)
		}
		s.logger(ctx).Warn("invite token collision, regenerating", "attempt", attempt+1)
	}
}

func snapshotOf(ev *events.Event) EventSnapshot {
	return EventSnapshot{
		EventID:      ev.ID,
		Title:        ev.Title,
		Organization: ev.Organization,
		Start:        ev.Start,
		City:         ev.City,
		Category:     ev.Category,
		LogoURL:      ev.LogoURL,
		BannerURL:    ev.BannerURL,
		PerPersonFee: ev.PerPersonFee,
	}
}
