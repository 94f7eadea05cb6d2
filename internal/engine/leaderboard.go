package engine

import (
	"context"
	"time"

	"github.com/dukerupert/wellpoints/internal/model"
)

const (
	DefaultLeaderboardLimit = 20
	MaxLeaderboardLimit     = 100
)

// Leaderboard returns the top profiles by points. Users with equal points
// share a rank and are listed by user id.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}

	entries, err := e.profiles.TopByPoints(ctx, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return []model.LeaderboardEntry{}, nil
	}
	for i := range entries {
		if i > 0 && entries[i].TotalPoints == entries[i-1].TotalPoints {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
		if entries[i].DisplayName == "" {
			entries[i].DisplayName = "Unknown"
		}
	}
	return entries, nil
}

// Rank returns 1 plus the number of users with strictly more points. A user
// without a profile is ranked as having zero points.
func (e *Engine) Rank(ctx context.Context, userID string) (*model.RankResult, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	points := 0
	if profile != nil {
		points = profile.TotalPoints
	}
	above, err := e.profiles.CountAbove(ctx, points)
	if err != nil {
		return nil, err
	}
	return &model.RankResult{Rank: above + 1, TotalPoints: points}, nil
}

type Status struct {
	Profiles         int       `json:"profiles"`
	ActiveChallenges int       `json:"active_challenges"`
	LedgerEntries    int       `json:"ledger_entries"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Status summarises the stored state for operators.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	profiles, err := e.profiles.Count(ctx)
	if err != nil {
		return nil, err
	}
	active, err := e.catalog.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	s := &Status{Profiles: profiles, ActiveChallenges: active, CheckedAt: e.clock()}
	if e.audit != nil {
		if s.LedgerEntries, err = e.audit.Count(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Reconciliation compares a profile's running total with its completion
// history and with the ledger. The profile is authoritative; a ledger
// shortfall means entries were lost after their award.
type Reconciliation struct {
	UserID          string `json:"user_id"`
	ProfileTotal    int    `json:"profile_total"`
	CompletionTotal int    `json:"completion_total"`
	LedgerTotal     int    `json:"ledger_total"`
	LedgerDrift     int    `json:"ledger_drift"`
	Consistent      bool   `json:"consistent"`
}

func (e *Engine) Reconcile(ctx context.Context, userID string) (*Reconciliation, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	r := &Reconciliation{UserID: userID, ProfileTotal: profile.TotalPoints}
	for _, c := range profile.Completions {
		r.CompletionTotal += c.PointsAwarded
	}
	if e.audit != nil {
		if r.LedgerTotal, err = e.audit.SumByUser(ctx, userID); err != nil {
			return nil, err
		}
	}
	r.LedgerDrift = r.ProfileTotal - r.LedgerTotal
	r.Consistent = r.ProfileTotal == r.CompletionTotal && r.LedgerDrift == 0

	if !r.Consistent {
		e.logger.Warn("reward totals disagree", "user_id", userID,
			"profile_total", r.ProfileTotal, "completion_total", r.CompletionTotal, "ledger_total", r.LedgerTotal)
	}
	return r, nil
}
