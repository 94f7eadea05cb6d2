package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/wellpoints/internal/model"
)

func setupProfileStore(t *testing.T) *ProfileStore {
	t.Helper()
	return NewProfileStore(setupTestDB(t))
}

func mustEnsure(t *testing.T, ps *ProfileStore, userID, name string) *model.RewardProfile {
	t.Helper()
	p, err := ps.Ensure(context.Background(), userID, name)
	if err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	return p
}

func walkAttempt(started time.Time) model.ActiveAttempt {
	return model.ActiveAttempt{
		ChallengeKey:  "daily-walk",
		Title:         "Daily Walk",
		Points:        10,
		RequiredDays:  1,
		CooldownHours: 24,
		StartedAt:     started,
	}
}

func TestProfileEnsure(t *testing.T) {
	ps := setupProfileStore(t)

	p := mustEnsure(t, ps, "alice", "Alice")
	if p.UserID != "alice" || p.DisplayName != "Alice" {
		t.Errorf("profile = %+v", p)
	}
	if p.TotalPoints != 0 || len(p.ActiveAttempts) != 0 || len(p.Completions) != 0 {
		t.Errorf("expected empty profile, got %+v", p)
	}

	// Empty name keeps the stored one.
	p = mustEnsure(t, ps, "alice", "")
	if p.DisplayName != "Alice" {
		t.Errorf("display name = %q, want Alice", p.DisplayName)
	}

	p = mustEnsure(t, ps, "alice", "Alice B.")
	if p.DisplayName != "Alice B." {
		t.Errorf("display name = %q, want Alice B.", p.DisplayName)
	}

	n, _ := ps.Count(context.Background())
	if n != 1 {
		t.Errorf("profiles = %d, want 1", n)
	}
}

func TestProfileGetMissing(t *testing.T) {
	ps := setupProfileStore(t)

	p, err := ps.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Error("expected nil for missing profile")
	}
}

func TestInsertAttemptOncePerKey(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	started := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	ok, err := ps.InsertAttempt(ctx, "alice", walkAttempt(started))
	if err != nil || !ok {
		t.Fatalf("first insert = %v, %v", ok, err)
	}

	ok, err = ps.InsertAttempt(ctx, "alice", walkAttempt(started.Add(time.Hour)))
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Error("second insert for the same key should not apply")
	}

	p, _ := ps.Get(ctx, "alice")
	if len(p.ActiveAttempts) != 1 {
		t.Fatalf("attempts = %d, want 1", len(p.ActiveAttempts))
	}
	if !p.ActiveAttempts[0].StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", p.ActiveAttempts[0].StartedAt, started)
	}
}

func TestInsertAttemptMissingProfile(t *testing.T) {
	ps := setupProfileStore(t)

	ok, err := ps.InsertAttempt(context.Background(), "ghost", walkAttempt(time.Now()))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ok {
		t.Error("insert without a profile row should not apply")
	}
}

func TestIncrementProgressOncePerDay(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	run := walkAttempt(time.Now())
	run.ChallengeKey = "weekly-run"
	run.RequiredDays = 7
	ps.InsertAttempt(ctx, "alice", walkAttempt(time.Now()))
	ps.InsertAttempt(ctx, "alice", run)

	ok, err := ps.IncrementProgress(ctx, "alice", "weekly-run", "2025-05-01", "2025-04-30")
	if err != nil || !ok {
		t.Fatalf("first increment = %v, %v", ok, err)
	}
	ok, _ = ps.IncrementProgress(ctx, "alice", "weekly-run", "2025-05-01", "2025-04-30")
	if ok {
		t.Error("second increment on the same day should not apply")
	}
	ok, _ = ps.IncrementProgress(ctx, "alice", "weekly-run", "2025-05-02", "2025-05-01")
	if !ok {
		t.Error("increment on the next day should apply")
	}

	p, _ := ps.Get(ctx, "alice")
	a := p.FindAttempt("weekly-run")
	if a == nil {
		t.Fatal("weekly-run attempt missing")
	}
	if a.DaysCompleted != 2 {
		t.Errorf("days completed = %d, want 2", a.DaysCompleted)
	}
	if a.LastProgressDay != "2025-05-02" {
		t.Errorf("last progress day = %q, want 2025-05-02", a.LastProgressDay)
	}
	if other := p.FindAttempt("daily-walk"); other == nil || other.DaysCompleted != 0 {
		t.Errorf("daily-walk attempt changed: %+v", other)
	}
	if p.Streak.Current != 2 || p.Streak.Longest != 2 {
		t.Errorf("streak = %+v, want current=2 longest=2", p.Streak)
	}
}

func TestIncrementProgressStreakReset(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	run := walkAttempt(time.Now())
	run.RequiredDays = 10
	ps.InsertAttempt(ctx, "alice", run)

	ps.IncrementProgress(ctx, "alice", "daily-walk", "2025-05-01", "2025-04-30")
	ps.IncrementProgress(ctx, "alice", "daily-walk", "2025-05-02", "2025-05-01")
	ps.IncrementProgress(ctx, "alice", "daily-walk", "2025-05-05", "2025-05-04")

	p, _ := ps.Get(ctx, "alice")
	if p.Streak.Current != 1 {
		t.Errorf("current streak = %d, want 1", p.Streak.Current)
	}
	if p.Streak.Longest != 2 {
		t.Errorf("longest streak = %d, want 2", p.Streak.Longest)
	}
	if p.Streak.LastActivityDay != "2025-05-05" {
		t.Errorf("last activity = %q", p.Streak.LastActivityDay)
	}
}

func TestIncrementProgressWithoutAttempt(t *testing.T) {
	ps := setupProfileStore(t)
	mustEnsure(t, ps, "alice", "Alice")

	ok, err := ps.IncrementProgress(context.Background(), "alice", "daily-walk", "2025-05-01", "2025-04-30")
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ok {
		t.Error("increment without attempt should not apply")
	}
}

func TestApplyCompletionCooldown(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	t0 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	ps.InsertAttempt(ctx, "alice", walkAttempt(t0))

	rec := model.CompletionRecord{ID: "c1", ChallengeKey: "daily-walk", Title: "Daily Walk", CompletedAt: t0, PointsAwarded: 10}
	total, ok, err := ps.ApplyCompletion(ctx, "alice", rec, t0.Add(-24*time.Hour), false)
	if err != nil || !ok {
		t.Fatalf("first completion = %v, %v", ok, err)
	}
	if total != 10 {
		t.Errorf("total = %d, want 10", total)
	}

	// One hour later: the previous completion is newer than now-24h.
	later := t0.Add(time.Hour)
	rec2 := rec
	rec2.ID, rec2.CompletedAt = "c2", later
	_, ok, err = ps.ApplyCompletion(ctx, "alice", rec2, later.Add(-24*time.Hour), false)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if ok {
		t.Error("completion inside the cooldown should not apply")
	}

	// Exactly at the boundary the old completion is no longer newer.
	boundary := t0.Add(24 * time.Hour)
	rec3 := rec
	rec3.ID, rec3.CompletedAt = "c3", boundary
	total, ok, _ = ps.ApplyCompletion(ctx, "alice", rec3, boundary.Add(-24*time.Hour), false)
	if !ok {
		t.Fatal("completion at the cooldown boundary should apply")
	}
	if total != 20 {
		t.Errorf("total = %d, want 20", total)
	}

	p, _ := ps.Get(ctx, "alice")
	if len(p.Completions) != 2 {
		t.Errorf("completions = %d, want 2", len(p.Completions))
	}
	if len(p.ActiveAttempts) != 0 {
		t.Errorf("attempts = %d, want 0", len(p.ActiveAttempts))
	}
	if p.TotalPoints != 20 {
		t.Errorf("total points = %d, want 20", p.TotalPoints)
	}
}

func TestApplyCompletionOtherKeyUnaffected(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	ps.InsertAttempt(ctx, "alice", walkAttempt(now))

	hydration := model.CompletionRecord{ID: "h1", ChallengeKey: "hydration", CompletedAt: now, PointsAwarded: 5}
	if _, ok, _ := ps.ApplyCompletion(ctx, "alice", hydration, now.Add(-24*time.Hour), false); !ok {
		t.Fatal("hydration completion should apply")
	}

	walk := model.CompletionRecord{ID: "w1", ChallengeKey: "daily-walk", CompletedAt: now, PointsAwarded: 10}
	total, ok, _ := ps.ApplyCompletion(ctx, "alice", walk, now.Add(-24*time.Hour), false)
	if !ok {
		t.Fatal("a completion of another key must not block daily-walk")
	}
	if total != 15 {
		t.Errorf("total = %d, want 15", total)
	}
}

func TestRemoveAttempt(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")
	ps.InsertAttempt(ctx, "alice", walkAttempt(time.Now()))

	ok, err := ps.RemoveAttempt(ctx, "alice", "daily-walk")
	if err != nil || !ok {
		t.Fatalf("remove = %v, %v", ok, err)
	}
	ok, _ = ps.RemoveAttempt(ctx, "alice", "daily-walk")
	if ok {
		t.Error("second remove should not apply")
	}
}

func TestApplyCompletionRequiresAttempt(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	mustEnsure(t, ps, "alice", "Alice")

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := model.CompletionRecord{ID: "c1", ChallengeKey: "daily-walk", CompletedAt: now, PointsAwarded: 10}
	_, ok, err := ps.ApplyCompletion(ctx, "alice", rec, now.Add(-24*time.Hour), true)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ok {
		t.Error("completion without an active attempt should not apply")
	}

	ps.InsertAttempt(ctx, "alice", walkAttempt(now))
	total, ok, _ := ps.ApplyCompletion(ctx, "alice", rec, now.Add(-24*time.Hour), true)
	if !ok || total != 10 {
		t.Errorf("apply with attempt = %d, %v; want 10, true", total, ok)
	}
}

func TestTopByPointsTieBreak(t *testing.T) {
	ps := setupProfileStore(t)
	ctx := context.Background()
	now := time.Now()

	award := func(user string, points int) {
		mustEnsure(t, ps, user, user)
		rec := model.CompletionRecord{ID: user + "-c", ChallengeKey: "k", CompletedAt: now, PointsAwarded: points}
		if _, ok, err := ps.ApplyCompletion(ctx, user, rec, now.Add(-time.Hour), false); err != nil || !ok {
			t.Fatalf("award %s: %v %v", user, ok, err)
		}
	}
	award("carol", 30)
	award("bob", 50)
	award("alice", 30)
	award("dave", 10)

	top, err := ps.TopByPoints(ctx, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []string{"bob", "alice", "carol"}
	if len(top) != len(want) {
		t.Fatalf("top = %d rows, want %d", len(top), len(want))
	}
	for i, id := range want {
		if top[i].UserID != id {
			t.Errorf("top[%d] = %q, want %q", i, top[i].UserID, id)
		}
	}

	above, _ := ps.CountAbove(ctx, 30)
	if above != 1 {
		t.Errorf("count above 30 = %d, want 1", above)
	}
}
