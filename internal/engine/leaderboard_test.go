package engine

import (
	"context"
	"testing"

	"github.com/dukerupert/wellpoints/internal/model"
)

func award(t *testing.T, f *fixture, user User, ref model.ChallengeRef) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.engine.StartChallenge(ctx, user, ref); err != nil {
		t.Fatalf("start %s for %s: %v", ref.Key, user.ID, err)
	}
	if _, err := f.engine.CompleteChallenge(ctx, user, ref); err != nil {
		t.Fatalf("complete %s for %s: %v", ref.Key, user.ID, err)
	}
}

func TestLeaderboardTiesShareRank(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	carol := User{ID: "carol", DisplayName: "Carol"}
	bob := User{ID: "bob", DisplayName: "Bob"}
	dave := User{ID: "dave"}

	award(t, f, carol, model.Canonical("daily-walk"))
	award(t, f, alice, model.Canonical("daily-walk"))
	award(t, f, bob, model.Canonical("daily-walk"))
	award(t, f, bob, model.Canonical("hydration"))
	award(t, f, dave, model.Canonical("hydration"))

	for range 3 {
		board, err := f.engine.Leaderboard(ctx, 0)
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		want := []struct {
			user string
			rank int
		}{{"bob", 1}, {"alice", 2}, {"carol", 2}, {"dave", 4}}
		if len(board) != len(want) {
			t.Fatalf("entries = %d, want %d", len(board), len(want))
		}
		for i, w := range want {
			if board[i].UserID != w.user || board[i].Rank != w.rank {
				t.Errorf("board[%d] = %s rank %d, want %s rank %d", i, board[i].UserID, board[i].Rank, w.user, w.rank)
			}
		}
		if board[3].DisplayName != "Unknown" {
			t.Errorf("display name fallback = %q", board[3].DisplayName)
		}
	}

	top, _ := f.engine.Leaderboard(ctx, 1)
	if len(top) != 1 || top[0].UserID != "bob" {
		t.Errorf("top 1 = %+v", top)
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	f := setupEngine(t)
	board, err := f.engine.Leaderboard(context.Background(), 500)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if board == nil || len(board) != 0 {
		t.Errorf("board = %#v, want empty slice", board)
	}
}

func TestRank(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	award(t, f, User{ID: "bob"}, model.Canonical("daily-walk"))
	award(t, f, alice, model.Canonical("hydration"))

	r, err := f.engine.Rank(ctx, "alice")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if r.Rank != 2 || r.TotalPoints != 5 {
		t.Errorf("alice rank = %+v, want rank 2 with 5 points", r)
	}

	r, _ = f.engine.Rank(ctx, "nobody")
	if r.Rank != 3 || r.TotalPoints != 0 {
		t.Errorf("unknown user rank = %+v, want rank 3 with 0 points", r)
	}
}

func TestStatusAndReconcile(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	award(t, f, alice, model.Canonical("daily-walk"))
	for _, e := range f.sink.entries {
		if err := f.ledger.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	s, err := f.engine.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if s.Profiles != 1 || s.LedgerEntries != 1 || s.ActiveChallenges != 13 {
		t.Errorf("status = %+v", s)
	}

	rec, err := f.engine.Reconcile(ctx, "alice")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent || rec.ProfileTotal != 10 || rec.LedgerTotal != 10 {
		t.Errorf("reconciliation = %+v", rec)
	}

	if _, err := f.engine.Reconcile(ctx, "ghost"); err != ErrProfileNotFound {
		t.Errorf("missing profile err = %v", err)
	}
}
