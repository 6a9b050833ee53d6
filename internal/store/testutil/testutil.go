// Package testutil provides a conformance suite for teams.Repository drivers.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MahdiBaghbani/teamverify-go/internal/components/teams"
	"github.com/MahdiBaghbani/teamverify-go/internal/store"
)

// Base is the fixed clock used by the fixtures.
var Base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestTeam returns a pending team owned by captainID that expires at Base+72h.
func TestTeam(id, captainID string) *teams.TeamRegistration {
	return &teams.TeamRegistration{
		ID:           id,
		EventID:      "hackathon-2026",
		CaptainID:    captainID,
		CaptainEmail: captainID + "@example.com",
		CaptainName:  "Captain " + captainID,
		TeamName:     "Team " + id,
		TeamSize:     3,
		TotalAmount:  4500,
		Status:       teams.TeamPending,
		ExpiresAt:    Base.Add(72 * time.Hour),
		Event: teams.EventSnapshot{
			EventID:      "hackathon-2026",
			Title:        "Spring Hackathon",
			Organization: "Campus Tech Club",
			Start:        Base.Add(30 * 24 * time.Hour),
			City:         "Lisbon",
			Category:     "technology",
			PerPersonFee: 1500,
		},
		CreatedAt: Base,
		UpdatedAt: Base,
	}
}

// TestInvites returns a verified captain invite and two open member invites for the team.
func TestInvites(team *teams.TeamRegistration) []*teams.MemberInvite {
	verifiedAt := team.CreatedAt
	out := []*teams.MemberInvite{{
		ID:         team.ID + "-inv-0",
		TeamID:     team.ID,
		Token:      team.ID + "-tok-0",
		Email:      team.CaptainEmail,
		Role:       teams.RoleCaptain,
		IsVerified: true,
		VerifiedAt: &verifiedAt,
		VerifiedBy: team.CaptainID,
		ExpiresAt:  team.ExpiresAt,
		Status:     teams.InviteVerified,
		CreatedAt:  team.CreatedAt,
		UpdatedAt:  team.CreatedAt,
	}}
	for i := 1; i <= 2; i++ {
		out = append(out, &teams.MemberInvite{
			ID:        fmt.Sprintf("%s-inv-%d", team.ID, i),
			TeamID:    team.ID,
			Token:     fmt.Sprintf("%s-tok-%d", team.ID, i),
			Email:     fmt.Sprintf("member%d@example.com", i),
			Role:      teams.RoleMember,
			ExpiresAt: team.ExpiresAt,
			Status:    teams.InviteInvited,
			CreatedAt: team.CreatedAt,
			UpdatedAt: team.CreatedAt,
		})
	}
	return out
}

// RunDriverTests creates, initializes and exercises a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	driver, err := store.New(cfg)
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", driverName, err)
	}
	defer driver.Close()

	if err := driver.Init(ctx); err != nil {
		t.Fatalf("failed to init %s driver: %v", driverName, err)
	}
	if driver.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, driver.Name())
	}
	if err := driver.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}

	RunRepositoryTests(t, driver.Teams())
}

// RunRepositoryTests runs the repository contract against repo. Each subtest
// uses its own team ids so one repository can serve the whole suite.
func RunRepositoryTests(t *testing.T, repo teams.Repository) {
	ctx := context.Background()

	t.Run("TeamRoundTrip", func(t *testing.T) { testTeamRoundTrip(t, ctx, repo) })
	t.Run("DuplicateTokenStoresNothing", func(t *testing.T) { testDuplicateToken(t, ctx, repo) })
	t.Run("UpdateTeam", func(t *testing.T) { testUpdateTeam(t, ctx, repo) })
	t.Run("ListTeamsByCaptain", func(t *testing.T) { testListByCaptain(t, ctx, repo) })
	t.Run("InviteLifecycle", func(t *testing.T) { testInviteLifecycle(t, ctx, repo) })
	t.Run("InviteCounts", func(t *testing.T) { testInviteCounts(t, ctx, repo) })
	t.Run("IncrementAttempts", func(t *testing.T) { testIncrementAttempts(t, ctx, repo) })
	t.Run("WithinTxRollsBack", func(t *testing.T) { testWithinTxRollback(t, ctx, repo) })
	t.Run("DueQueries", func(t *testing.T) { testDueQueries(t, ctx, repo) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, ctx, repo) })
}

func mustCreate(t *testing.T, ctx context.Context, repo teams.Repository, team *teams.TeamRegistration) []*teams.MemberInvite {
	t.Helper()
	invites := TestInvites(team)
	if err := repo.CreateTeam(ctx, team, invites); err != nil {
		t.Fatalf("CreateTeam(%s): %v", team.ID, err)
	}
	return invites
}

func testTeamRoundTrip(t *testing.T, ctx context.Context, repo teams.Repository) {
	team := TestTeam("rt", "cap-rt")
	mustCreate(t, ctx, repo, team)

	got, err := repo.GetTeam(ctx, "rt")
	if err != nil {
		t.Fatalf("GetTeam: %v", err)
	}
	if got.TeamName != team.TeamName || got.TotalAmount != 4500 || got.Status != teams.TeamPending {
		t.Errorf("unexpected team: %+v", got)
	}
	if !got.ExpiresAt.Equal(team.ExpiresAt) || !got.CreatedAt.Equal(team.CreatedAt) {
		t.Errorf("times changed: expires %v created %v", got.ExpiresAt, got.CreatedAt)
	}
	if got.Event.Title != "Spring Hackathon" || !got.Event.Start.Equal(team.Event.Start) || got.Event.PerPersonFee != 1500 {
		t.Errorf("event snapshot lost: %+v", got.Event)
	}
	if got.CancelledAt != nil {
		t.Errorf("expected nil CancelledAt, got %v", got.CancelledAt)
	}
}

func testDuplicateToken(t *testing.T, ctx context.Context, repo teams.Repository) {
	mustCreate(t, ctx, repo, TestTeam("dup-a", "cap-dup"))

	team := TestTeam("dup-b", "cap-dup")
	invites := TestInvites(team)
	invites[2].Token = "dup-a-tok-1"

	err := repo.CreateTeam(ctx, team, invites)
	if !errors.Is(err, teams.ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
	if _, err := repo.GetTeam(ctx, "dup-b"); !errors.Is(err, teams.ErrTeamNotFound) {
		t.Errorf("team should not exist after failed create, got %v", err)
	}
	if _, err := repo.GetInviteByToken(ctx, "dup-b-tok-0"); !errors.Is(err, teams.ErrInviteNotFound) {
		t.Errorf("invite should not exist after failed create, got %v", err)
	}
}

func testUpdateTeam(t *testing.T, ctx context.Context, repo teams.Repository) {
	team := TestTeam("upd", "cap-upd")
	mustCreate(t, ctx, repo, team)

	cancelled := Base.Add(time.Hour)
	team.Status = teams.TeamCancelled
	team.CancelReason = "venue changed"
	team.CancelledAt = &cancelled
	team.UpdatedAt = cancelled
	if err := repo.UpdateTeam(ctx, team); err != nil {
		t.Fatalf("UpdateTeam: %v", err)
	}

	got, err := repo.GetTeam(ctx, "upd")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != teams.TeamCancelled || got.CancelReason != "venue changed" {
		t.Errorf("update not persisted: %+v", got)
	}
	if got.CancelledAt == nil || !got.CancelledAt.Equal(cancelled) {
		t.Errorf("CancelledAt = %v, want %v", got.CancelledAt, cancelled)
	}
}

func testListByCaptain(t *testing.T, ctx context.Context, repo teams.Repository) {
	older := TestTeam("list-old", "cap-list")
	newer := TestTeam("list-new", "cap-list")
	newer.CreatedAt = Base.Add(time.Minute)
	mustCreate(t, ctx, repo, older)
	mustCreate(t, ctx, repo, newer)
	mustCreate(t, ctx, repo, TestTeam("list-other", "cap-someone-else"))

	got, err := repo.ListTeamsByCaptain(ctx, "cap-list")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(got))
	}
	if got[0].ID != "list-new" || got[1].ID != "list-old" {
		t.Errorf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
}

func testInviteLifecycle(t *testing.T, ctx context.Context, repo teams.Repository) {
	team := TestTeam("life", "cap-life")
	invites := mustCreate(t, ctx, repo, team)

	inv, err := repo.GetInviteByToken(ctx, "life-tok-1")
	if err != nil {
		t.Fatalf("GetInviteByToken: %v", err)
	}
	if inv.Email != "member1@example.com" || inv.Role != teams.RoleMember || inv.IsVerified {
		t.Errorf("unexpected invite: %+v", inv)
	}

	sent := Base.Add(time.Minute)
	codeExpiry := sent.Add(10 * time.Minute)
	inv.OTPHash = "hash"
	inv.LastOTPSentAt = &sent
	inv.OTPExpiresAt = &codeExpiry
	inv.Token = "attempted-rewrite"
	if err := repo.UpdateInvite(ctx, inv); err != nil {
		t.Fatalf("UpdateInvite: %v", err)
	}

	got, err := repo.GetInviteByToken(ctx, "life-tok-1")
	if err != nil {
		t.Fatalf("token must not change on update: %v", err)
	}
	if got.OTPHash != "hash" || got.OTPExpiresAt == nil || !got.OTPExpiresAt.Equal(codeExpiry) {
		t.Errorf("code fields not persisted: %+v", got)
	}

	replacement := &teams.MemberInvite{
		ID:        "life-inv-3",
		TeamID:    "life",
		Token:     "life-tok-3",
		Email:     "member3@example.com",
		Role:      teams.RoleMember,
		ExpiresAt: team.ExpiresAt,
		Status:    teams.InviteInvited,
		CreatedAt: Base.Add(2 * time.Minute),
		UpdatedAt: Base.Add(2 * time.Minute),
	}
	if err := repo.CreateInvite(ctx, replacement); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	all, err := repo.ListInvites(ctx, "life")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(invites)+1 {
		t.Fatalf("expected %d invites, got %d", len(invites)+1, len(all))
	}
	for i, want := range []string{"life-inv-0", "life-inv-1", "life-inv-2", "life-inv-3"} {
		if all[i].ID != want {
			t.Errorf("invite[%d] = %s, want %s", i, all[i].ID, want)
		}
	}

	orphan := *replacement
	orphan.ID, orphan.Token, orphan.TeamID = "orphan", "orphan-tok", "no-such-team"
	if err := repo.CreateInvite(ctx, &orphan); !errors.Is(err, teams.ErrTeamNotFound) {
		t.Errorf("expected ErrTeamNotFound for orphan invite, got %v", err)
	}
	clash := *replacement
	clash.ID = "life-inv-4"
	if err := repo.CreateInvite(ctx, &clash); !errors.Is(err, teams.ErrDuplicateToken) {
		t.Errorf("expected ErrDuplicateToken, got %v", err)
	}
}

func testInviteCounts(t *testing.T, ctx context.Context, repo teams.Repository) {
	invites := mustCreate(t, ctx, repo, TestTeam("cnt", "cap-cnt"))

	invites[2].Status = teams.InviteReplaced
	if err := repo.UpdateInvite(ctx, invites[2]); err != nil {
		t.Fatal(err)
	}

	counts, err := repo.InviteCounts(ctx, []string{"cnt", "cnt-missing"})
	if err != nil {
		t.Fatal(err)
	}
	if got := counts["cnt"]; got.Total != 2 || got.Verified != 1 {
		t.Errorf("counts[cnt] = %+v, want total 2 verified 1", got)
	}
	if got, ok := counts["cnt-missing"]; !ok || got.Total != 0 {
		t.Errorf("expected zero counts for unknown team, got %+v (present=%v)", got, ok)
	}

	empty, err := repo.InviteCounts(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("InviteCounts(nil) = %v, %v", empty, err)
	}
}

func testIncrementAttempts(t *testing.T, ctx context.Context, repo teams.Repository) {
	invites := mustCreate(t, ctx, repo, TestTeam("att", "cap-att"))
	id := invites[1].ID

	for want := 1; want <= 3; want++ {
		n, err := repo.IncrementAttempts(ctx, id, 3)
		if err != nil {
			t.Fatalf("increment %d: %v", want, err)
		}
		if n != want {
			t.Errorf("increment returned %d, want %d", n, want)
		}
	}

	n, err := repo.IncrementAttempts(ctx, id, 3)
	if !errors.Is(err, teams.ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}
	if n != 3 {
		t.Errorf("exhausted increment returned %d, want 3", n)
	}

	if _, err := repo.IncrementAttempts(ctx, "no-such-invite", 3); !errors.Is(err, teams.ErrInviteNotFound) {
		t.Errorf("expected ErrInviteNotFound, got %v", err)
	}
}

func testWithinTxRollback(t *testing.T, ctx context.Context, repo teams.Repository) {
	team := TestTeam("tx", "cap-tx")
	mustCreate(t, ctx, repo, team)

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(tx teams.Repository) error {
		got, err := tx.GetTeam(ctx, "tx")
		if err != nil {
			return err
		}
		got.Status = teams.TeamConfirmed
		if err := tx.UpdateTeam(ctx, got); err != nil {
			return err
		}
		if _, err := tx.IncrementAttempts(ctx, "tx-inv-1", 5); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, err := repo.GetTeam(ctx, "tx")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != teams.TeamPending {
		t.Errorf("status = %s after rollback, want pending", got.Status)
	}
	inv, err := repo.GetInviteByToken(ctx, "tx-tok-1")
	if err != nil {
		t.Fatal(err)
	}
	if inv.OTPAttempts != 0 {
		t.Errorf("attempts = %d after rollback, want 0", inv.OTPAttempts)
	}

	err = repo.WithinTx(ctx, func(tx teams.Repository) error {
		got, err := tx.GetTeam(ctx, "tx")
		if err != nil {
			return err
		}
		got.PaidAmount = 1500
		return tx.UpdateTeam(ctx, got)
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got, _ := repo.GetTeam(ctx, "tx"); got.PaidAmount != 1500 {
		t.Errorf("committed write lost: %+v", got)
	}
}

func testDueQueries(t *testing.T, ctx context.Context, repo teams.Repository) {
	soon := TestTeam("due-soon", "cap-due")
	soon.ExpiresAt = Base.Add(time.Hour)
	soonInvites := TestInvites(soon)
	for _, inv := range soonInvites {
		inv.ExpiresAt = soon.ExpiresAt
	}
	if err := repo.CreateTeam(ctx, soon, soonInvites); err != nil {
		t.Fatal(err)
	}

	confirmed := TestTeam("due-confirmed", "cap-due")
	confirmed.ExpiresAt = Base.Add(time.Hour)
	confirmed.Status = teams.TeamConfirmed
	if err := repo.CreateTeam(ctx, confirmed, nil); err != nil {
		t.Fatal(err)
	}

	now := Base.Add(2 * time.Hour)
	dueTeams, err := repo.ListDueTeams(ctx, now, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !containsTeam(dueTeams, "due-soon") {
		t.Errorf("expected due-soon among due teams")
	}
	if containsTeam(dueTeams, "due-confirmed") {
		t.Errorf("confirmed team must not be due")
	}

	dueInvites, err := repo.ListDueInvites(ctx, now, 0)
	if err != nil {
		t.Fatal(err)
	}
	var open int
	for _, inv := range dueInvites {
		if inv.TeamID == "due-soon" {
			if inv.IsVerified {
				t.Errorf("verified invite %s listed as due", inv.ID)
			}
			open++
		}
	}
	if open != 2 {
		t.Errorf("expected 2 due invites for due-soon, got %d", open)
	}

	limited, err := repo.ListDueInvites(ctx, now, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d", len(limited))
	}

	if early, _ := repo.ListDueTeams(ctx, Base, 0); containsTeam(early, "due-soon") {
		t.Errorf("team is not due before its window closes")
	}
}

func testNotFound(t *testing.T, ctx context.Context, repo teams.Repository) {
	if _, err := repo.GetTeam(ctx, "missing"); !errors.Is(err, teams.ErrTeamNotFound) {
		t.Errorf("GetTeam: %v", err)
	}
	if _, err := repo.GetInviteByToken(ctx, "missing"); !errors.Is(err, teams.ErrInviteNotFound) {
		t.Errorf("GetInviteByToken: %v", err)
	}
	if err := repo.UpdateTeam(ctx, TestTeam("missing", "nobody")); !errors.Is(err, teams.ErrTeamNotFound) {
		t.Errorf("UpdateTeam: %v", err)
	}
	ghost := TestInvites(TestTeam("missing", "nobody"))[1]
	if err := repo.UpdateInvite(ctx, ghost); !errors.Is(err, teams.ErrInviteNotFound) {
		t.Errorf("UpdateInvite: %v", err)
	}
	list, err := repo.ListInvites(ctx, "missing")
	if err != nil || len(list) != 0 {
		t.Errorf("ListInvites(missing) = %v, %v", list, err)
	}
}

func containsTeam(list []*teams.TeamRegistration, id string) bool {
	for _, t := range list {
		if t.ID == id {
			return true
		}
	}
	return false
}
