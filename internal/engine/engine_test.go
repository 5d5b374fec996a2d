package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/migrate"
	"ideaforge/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := &testEnv{Ctx: context.Background(), clock: &now}
	env.Engine = engine.New(conn, config.Default())
	env.Engine.Now = func() time.Time { return *env.clock }
	env.Engine.History.Now = env.Engine.Now
	env.Engine.Notify.Now = env.Engine.Now
	return env
}

func (env *testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func (env *testEnv) createUsers(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u, err := env.Engine.CreateUser(env.Ctx, fmt.Sprintf("0xwallet%03d", i), "")
		if err != nil {
			t.Fatalf("create user %d: %v", i, err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

func (env *testEnv) createIdea(t *testing.T, owner string) domain.Idea {
	t.Helper()
	idea, err := env.Engine.CreateIdea(env.Ctx, engine.IdeaCreateOptions{
		OwnerUserID: owner,
		Title:       "Community garden",
		Target:      "Neighbors",
		Why:         "Shared green space",
		What:        "A garden",
		How:         "Volunteer weekends",
		Impact:      "Local food",
	})
	if err != nil {
		t.Fatalf("create idea: %v", err)
	}
	return idea
}

func TestLikeThresholdPromotesInline(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 20)
	idea := env.createIdea(t, users[0])

	// 5 of 20 is 25%, under the 30% threshold even though the minimum of
	// 5 likes is met.
	for _, u := range users[1:6] {
		if _, _, err := env.Engine.ToggleLike(env.Ctx, idea.ID, u); err != nil {
			t.Fatalf("like: %v", err)
		}
	}
	got, err := env.Engine.Repo.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusIdea {
		t.Fatalf("status = %s, want idea", got.Status)
	}

	// The sixth like lands exactly on 30% and promotes inline.
	if _, _, err := env.Engine.ToggleLike(env.Ctx, idea.ID, users[6]); err != nil {
		t.Fatalf("sixth like: %v", err)
	}
	got, err = env.Engine.Repo.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusPreDraft {
		t.Fatalf("status = %s, want pre-draft", got.Status)
	}

	hist, err := env.Engine.History.List(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := hist[len(hist)-1]
	if last.TriggerType != domain.TriggerLikeThreshold {
		t.Fatalf("trigger = %s, want LIKE_THRESHOLD", last.TriggerType)
	}
	if last.FromStatus == nil || *last.FromStatus != domain.StatusIdea || last.ToStatus != domain.StatusPreDraft {
		t.Fatalf("unexpected edge in history: %+v", last)
	}

	// A sweep right after must not move it again: the pre-draft rule needs
	// 40% and 10 likes.
	res, err := env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Promotions != 0 {
		t.Fatalf("sweep promotions = %d, want 0", res.Promotions)
	}
	if !res.Success {
		t.Fatalf("sweep errors: %v", res.Errors)
	}
}

func TestPromotionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 10)
	idea := env.createIdea(t, users[0])
	for _, u := range users[1:6] {
		if _, _, err := env.Engine.ToggleLike(env.Ctx, idea.ID, u); err != nil {
			t.Fatal(err)
		}
	}
	// 5 of 10 is 50%; the inline check already moved it to pre-draft.
	moved, err := env.Engine.CheckIdea(env.Ctx, idea.ID, domain.TriggerAutoProgression, "")
	if err != nil {
		t.Fatal(err)
	}
	if moved {
		t.Fatal("second evaluation should not move the idea again")
	}
	hist, err := env.Engine.History.List(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	edges := 0
	for _, p := range hist {
		if p.FromStatus != nil && *p.FromStatus == domain.StatusIdea && p.ToStatus == domain.StatusPreDraft {
			edges++
		}
	}
	if edges != 1 {
		t.Fatalf("idea->pre-draft recorded %d times, want 1", edges)
	}
}

func TestSweepPromotesWithAutoTrigger(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 10)
	idea := env.createIdea(t, users[0])
	// Seed likes directly so no inline check runs.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	for i, u := range users[1:6] {
		if err := env.Engine.Repo.InsertLike(env.Ctx, tx, domain.Like{
			ID: fmt.Sprintf("like-%d", i), IdeaID: idea.ID, UserID: u, CreatedAt: ts,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := env.Engine.Repo.AdjustLikesCount(env.Ctx, tx, idea.ID, 5, ts); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	res, err := env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Promotions != 1 {
		t.Fatalf("promotions = %d, want 1 (errors: %v)", res.Promotions, res.Errors)
	}
	hist, err := env.Engine.History.List(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	last := hist[len(hist)-1]
	if last.TriggerType != domain.TriggerAutoProgression {
		t.Fatalf("trigger = %s, want AUTO_PROGRESSION", last.TriggerType)
	}
}

func TestInactivityDelegation(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 3)
	owner, commenter := users[0], users[1]
	idea := env.createIdea(t, owner)
	if _, err := env.Engine.AdvanceIdea(env.Ctx, idea.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, idea.ID, commenter, "love this"); err != nil {
		t.Fatal(err)
	}

	// Thirteen days of silence is not enough.
	env.advance(13 * 24 * time.Hour)
	res, err := env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delegations != 0 {
		t.Fatalf("delegations = %d, want 0 before cutoff", res.Delegations)
	}

	env.advance(2 * 24 * time.Hour)
	res, err = env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delegations != 1 {
		t.Fatalf("delegations = %d, want 1 (errors: %v)", res.Delegations, res.Errors)
	}
	d, err := env.Engine.Repo.PendingDelegation(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.ToUserID != commenter || d.Reason != domain.DelegationInactivity {
		t.Fatalf("unexpected delegation %+v", d)
	}

	// The candidate is asked; the inactive owner is not told.
	unread, err := env.Engine.Repo.CountUnreadNotifications(env.Ctx, commenter)
	if err != nil {
		t.Fatal(err)
	}
	if unread == 0 {
		t.Fatal("candidate should have been notified")
	}
	ownerNotes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: owner})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range ownerNotes {
		if n.Type == domain.NotifyDelegation {
			t.Fatalf("inactive owner should not be notified, got %+v", n)
		}
	}

	// A second sweep must not stack another pending delegation.
	res, err = env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Delegations != 0 {
		t.Fatalf("delegations = %d, want 0 while one is pending", res.Delegations)
	}
}

func TestDelegationAcceptTransfersOwnership(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 3)
	owner, target, stranger := users[0], users[1], users[2]
	idea := env.createIdea(t, owner)
	d, err := env.Engine.Delegate(env.Ctx, idea.ID, owner, target)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.Status != domain.DelegationPending {
		t.Fatalf("expected pending delegation, got %+v", d)
	}

	if _, err := env.Engine.AcceptDelegation(env.Ctx, d.ID, stranger); !errors.Is(err, engine.ErrNotAuthorized) {
		t.Fatalf("stranger accept: err = %v, want ErrNotAuthorized", err)
	}

	accepted, err := env.Engine.AcceptDelegation(env.Ctx, d.ID, target)
	if err != nil {
		t.Fatal(err)
	}
	if accepted.Status != domain.DelegationAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("unexpected delegation after accept: %+v", accepted)
	}
	got, err := env.Engine.Repo.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerUserID == nil || *got.OwnerUserID != target {
		t.Fatalf("owner = %v, want %s", got.OwnerUserID, target)
	}

	if _, err := env.Engine.AcceptDelegation(env.Ctx, d.ID, target); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Fatalf("double accept: err = %v, want ErrAlreadyResolved", err)
	}

	// Both sides of the handshake hear about the transfer.
	for _, want := range []struct{ user, title string }{
		{target, "You are the new owner"},
		{owner, "Ownership transferred"},
	} {
		notes, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: want.user})
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, n := range notes {
			if n.Title == want.title {
				found = true
			}
		}
		if !found {
			t.Fatalf("user %s missing %q notification", want.user, want.title)
		}
	}
}

func TestPendingDelegationSlotIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 3)
	owner, first, second := users[0], users[1], users[2]
	idea := env.createIdea(t, owner)

	d, err := env.Engine.Delegate(env.Ctx, idea.ID, owner, first)
	if err != nil || d == nil {
		t.Fatalf("first delegate: %+v err=%v", d, err)
	}

	// A second insert against the occupied slot must surface as the
	// sentinel, not a raw constraint error.
	err = env.Engine.Repo.InsertDelegation(env.Ctx, nil, domain.Delegation{
		ID: "dup", IdeaID: idea.ID, ToUserID: second,
		Reason: domain.DelegationManual, Status: domain.DelegationPending,
		DelegatedAt: env.clock.Format(time.RFC3339),
	})
	if !errors.Is(err, repo.ErrPendingExists) {
		t.Fatalf("duplicate insert: err = %v, want ErrPendingExists", err)
	}

	// The engine path backs off silently instead of propagating the error.
	dup, err := env.Engine.Delegate(env.Ctx, idea.ID, owner, second)
	if err != nil {
		t.Fatalf("delegate while pending: %v", err)
	}
	if dup != nil {
		t.Fatalf("expected silent skip, got %+v", dup)
	}

	// Resolved slots do not block: accepted and declined rows coexist with
	// a later pending one.
	if _, err := env.Engine.DeclineDelegation(env.Ctx, d.ID, first); err != nil {
		t.Fatal(err)
	}
	if d, err = env.Engine.Delegate(env.Ctx, idea.ID, owner, second); err != nil || d == nil {
		t.Fatalf("delegate after decline: %+v err=%v", d, err)
	}
}

func TestDelegationDeclineKeepsOwner(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 2)
	owner, target := users[0], users[1]
	idea := env.createIdea(t, owner)
	d, err := env.Engine.Delegate(env.Ctx, idea.ID, owner, target)
	if err != nil {
		t.Fatal(err)
	}
	declined, err := env.Engine.DeclineDelegation(env.Ctx, d.ID, target)
	if err != nil {
		t.Fatal(err)
	}
	if declined.Status != domain.DelegationDeclined {
		t.Fatalf("status = %s, want declined", declined.Status)
	}
	got, err := env.Engine.Repo.GetIdea(env.Ctx, idea.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OwnerUserID == nil || *got.OwnerUserID != owner {
		t.Fatalf("owner = %v, want unchanged %s", got.OwnerUserID, owner)
	}

	// The slot is free again, so the owner may re-offer.
	if _, err := env.Engine.Delegate(env.Ctx, idea.ID, owner, target); err != nil {
		t.Fatalf("re-delegate after decline: %v", err)
	}
}

func TestAcceptedCollaboratorOutranksScores(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 4)
	owner, heavy, collaborator := users[0], users[1], users[2]
	idea := env.createIdea(t, owner)
	for i := 0; i < 5; i++ {
		if _, err := env.Engine.AddComment(env.Ctx, idea.ID, heavy, fmt.Sprintf("note %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	c, err := env.Engine.RequestCollaboration(env.Ctx, idea.ID, collaborator, "contributor", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveCollaboration(env.Ctx, c.ID, owner, true); err != nil {
		t.Fatal(err)
	}

	top, found, err := env.Engine.TopContributor(env.Ctx, idea.ID, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !found || top != collaborator {
		t.Fatalf("top = %s found=%v, want accepted collaborator %s", top, found, collaborator)
	}
}

func TestTopContributorTieBreaksOnFirstEngagement(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 3)
	owner, early, late := users[0], users[1], users[2]
	idea := env.createIdea(t, owner)
	if _, err := env.Engine.AddComment(env.Ctx, idea.ID, early, "first"); err != nil {
		t.Fatal(err)
	}
	env.advance(time.Minute)
	if _, err := env.Engine.AddComment(env.Ctx, idea.ID, late, "second"); err != nil {
		t.Fatal(err)
	}

	top, found, err := env.Engine.TopContributor(env.Ctx, idea.ID, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !found || top != early {
		t.Fatalf("top = %s, want the earlier contributor %s", top, early)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 3)
	owner, commenter := users[0], users[1]

	// An idea with a corrupt timestamp makes the inactivity check fail.
	broken := domain.Idea{
		ID: "broken", Title: "bad row", Target: "x", Why: "x", What: "x", How: "x", Impact: "x",
		Status: domain.StatusPreDraft, OwnerUserID: &owner,
		CreatedAt: "2023-12-01T00:00:00Z", UpdatedAt: "not-a-timestamp",
	}
	if err := env.Engine.Repo.InsertIdea(env.Ctx, broken); err != nil {
		t.Fatal(err)
	}

	healthy := env.createIdea(t, owner)
	if _, err := env.Engine.AdvanceIdea(env.Ctx, healthy.ID, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, healthy.ID, commenter, "still here"); err != nil {
		t.Fatal(err)
	}
	env.advance(15 * 24 * time.Hour)

	res, err := env.Engine.RunSweep(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("sweep should report the broken idea")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if res.Delegations != 1 {
		t.Fatalf("delegations = %d, want the healthy idea still processed", res.Delegations)
	}
}

func TestToggleLikeRemovesOnSecondCall(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 2)
	idea := env.createIdea(t, users[0])
	got, liked, err := env.Engine.ToggleLike(env.Ctx, idea.ID, users[1])
	if err != nil || !liked {
		t.Fatalf("first toggle: liked=%v err=%v", liked, err)
	}
	if got.LikesCount != 1 {
		t.Fatalf("likes_count = %d, want 1", got.LikesCount)
	}
	got, liked, err = env.Engine.ToggleLike(env.Ctx, idea.ID, users[1])
	if err != nil || liked {
		t.Fatalf("second toggle: liked=%v err=%v", liked, err)
	}
	if got.LikesCount != 0 {
		t.Fatalf("likes_count = %d, want 0", got.LikesCount)
	}
}

func TestToggleLikeSurvivesFailedInlineCheck(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 10)
	idea := env.createIdea(t, users[0])
	for _, u := range users[1:5] {
		if _, _, err := env.Engine.ToggleLike(env.Ctx, idea.ID, u); err != nil {
			t.Fatal(err)
		}
	}

	// Break the promotion path: the next check cannot write its history
	// row, so the promotion transaction rolls back.
	if _, err := env.Engine.DB.Exec(`DROP TABLE idea_progressions`); err != nil {
		t.Fatal(err)
	}

	// The fifth like crosses the threshold. The like itself committed
	// before the check ran, so the call must still succeed.
	got, liked, err := env.Engine.ToggleLike(env.Ctx, idea.ID, users[5])
	if err != nil {
		t.Fatalf("toggle with failing check: %v", err)
	}
	if !liked || got.LikesCount != 5 {
		t.Fatalf("liked=%v likes_count=%d, want true/5", liked, got.LikesCount)
	}
	if got.Status != domain.StatusIdea {
		t.Fatalf("status = %s, want the rolled-back idea stage", got.Status)
	}
}

func TestCreateUserReusesWalletRow(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateUser(env.Ctx, "0xsame", "alice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := env.Engine.CreateUser(env.Ctx, "0xsame", "other name")
	if err != nil {
		t.Fatalf("reconnecting a known wallet: %v", err)
	}
	if b.ID != a.ID {
		t.Fatalf("got a second row %s for wallet of %s", b.ID, a.ID)
	}
	n, err := env.Engine.Repo.CountUsers(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("user count = %d, want 1", n)
	}
}

func TestArchiveFromAnyLiveState(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 1)
	idea := env.createIdea(t, users[0])
	got, err := env.Engine.ArchiveIdea(env.Ctx, idea.ID, users[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusArchive {
		t.Fatalf("status = %s, want archive", got.Status)
	}
	if _, err := env.Engine.ArchiveIdea(env.Ctx, idea.ID, users[0]); err == nil {
		t.Fatal("archiving an archived idea should fail")
	}
}

func TestProgressionStats(t *testing.T) {
	env := newTestEnv(t)
	users := env.createUsers(t, 1)
	a := env.createIdea(t, users[0])
	env.createIdea(t, users[0])
	if _, err := env.Engine.AdvanceIdea(env.Ctx, a.ID, users[0]); err != nil {
		t.Fatal(err)
	}
	stats, err := env.Engine.ProgressionStats(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.ByStatus[domain.StatusPreDraft] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.ProgressionRate != 50 {
		t.Fatalf("progression rate = %v, want 50", stats.ProgressionRate)
	}
	// Two creations plus one advance, all manually triggered.
	if stats.ByTrigger[domain.TriggerManual] != 3 {
		t.Fatalf("manual trigger count = %d, want 3", stats.ByTrigger[domain.TriggerManual])
	}
}
