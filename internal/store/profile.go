package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dukerupert/wellpoints/internal/model"
)

// ProfileStore persists one reward profile row per user. Active attempts and
// completions live in JSON array columns; every mutation below is a single
// UPDATE whose WHERE clause carries its precondition, so concurrent callers
// are serialised by the database rather than by locks or transactions.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// attemptDoc and completionDoc are the JSON shapes stored in the profile row.
// Timestamps are unix milliseconds so SQL can compare them numerically.
type attemptDoc struct {
	ChallengeKey    string `json:"challenge_key"`
	Title           string `json:"title"`
	Points          int    `json:"points"`
	RequiredDays    int    `json:"required_days"`
	CooldownHours   int    `json:"cooldown_hours"`
	StartedAt       int64  `json:"started_at"`
	DaysCompleted   int    `json:"days_completed"`
	LastProgressDay string `json:"last_progress_day,omitempty"`
}

type completionDoc struct {
	ID            string `json:"id"`
	ChallengeKey  string `json:"challenge_key"`
	Title         string `json:"title"`
	CompletedAt   int64  `json:"completed_at"`
	PointsAwarded int    `json:"points_awarded"`
}

func toAttemptDoc(a model.ActiveAttempt) attemptDoc {
	return attemptDoc{
		ChallengeKey:    a.ChallengeKey,
		Title:           a.Title,
		Points:          a.Points,
		RequiredDays:    a.RequiredDays,
		CooldownHours:   a.CooldownHours,
		StartedAt:       a.StartedAt.UnixMilli(),
		DaysCompleted:   a.DaysCompleted,
		LastProgressDay: a.LastProgressDay,
	}
}

func (d attemptDoc) model() model.ActiveAttempt {
	return model.ActiveAttempt{
		ChallengeKey:    d.ChallengeKey,
		Title:           d.Title,
		Points:          d.Points,
		RequiredDays:    d.RequiredDays,
		CooldownHours:   d.CooldownHours,
		StartedAt:       time.UnixMilli(d.StartedAt).UTC(),
		DaysCompleted:   d.DaysCompleted,
		LastProgressDay: d.LastProgressDay,
	}
}

func toCompletionDoc(c model.CompletionRecord) completionDoc {
	return completionDoc{
		ID:            c.ID,
		ChallengeKey:  c.ChallengeKey,
		Title:         c.Title,
		CompletedAt:   c.CompletedAt.UnixMilli(),
		PointsAwarded: c.PointsAwarded,
	}
}

func (d completionDoc) model() model.CompletionRecord {
	return model.CompletionRecord{
		ID:            d.ID,
		ChallengeKey:  d.ChallengeKey,
		Title:         d.Title,
		CompletedAt:   time.UnixMilli(d.CompletedAt).UTC(),
		PointsAwarded: d.PointsAwarded,
	}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.RewardProfile, error) {
	var p model.RewardProfile
	var attemptsJSON, completionsJSON string

	err := scanner.Scan(&p.UserID, &p.DisplayName, &p.TotalPoints, &attemptsJSON, &completionsJSON,
		&p.Streak.Current, &p.Streak.Longest, &p.Streak.LastActivityDay, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	var attempts []attemptDoc
	if err := json.Unmarshal([]byte(attemptsJSON), &attempts); err != nil {
		return nil, fmt.Errorf("decode active attempts: %w", err)
	}
	var completions []completionDoc
	if err := json.Unmarshal([]byte(completionsJSON), &completions); err != nil {
		return nil, fmt.Errorf("decode completions: %w", err)
	}

	p.ActiveAttempts = make([]model.ActiveAttempt, 0, len(attempts))
	for _, a := range attempts {
		p.ActiveAttempts = append(p.ActiveAttempts, a.model())
	}
	sort.SliceStable(p.ActiveAttempts, func(i, j int) bool {
		return p.ActiveAttempts[i].StartedAt.Before(p.ActiveAttempts[j].StartedAt)
	})

	p.Completions = make([]model.CompletionRecord, 0, len(completions))
	for _, c := range completions {
		p.Completions = append(p.Completions, c.model())
	}
	return &p, nil
}

const profileCols = `user_id, display_name, total_points, active_attempts, completions,
	streak_current, streak_longest, streak_last_day, created_at, updated_at`

// Ensure creates the profile on first touch. A non-empty display name
// replaces the stored one.
func (s *ProfileStore) Ensure(ctx context.Context, userID, displayName string) (*model.RewardProfile, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_profiles (user_id, display_name) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name
		 WHERE excluded.display_name != '' AND excluded.display_name != reward_profiles.display_name`,
		userID, displayName,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return s.Get(ctx, userID)
}

func (s *ProfileStore) Get(ctx context.Context, userID string) (*model.RewardProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM reward_profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// InsertAttempt appends an attempt unless one for the same key already
// exists. Returns false when nothing was written.
func (s *ProfileStore) InsertAttempt(ctx context.Context, userID string, attempt model.ActiveAttempt) (bool, error) {
	doc, err := json.Marshal(toAttemptDoc(attempt))
	if err != nil {
		return false, fmt.Errorf("encode attempt: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reward_profiles
		 SET active_attempts = json_insert(active_attempts, '$[#]', json(?)),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?
		   AND NOT EXISTS (
		       SELECT 1 FROM json_each(reward_profiles.active_attempts) AS a
		       WHERE json_extract(a.value, '$.challenge_key') = ?)`,
		string(doc), userID, attempt.ChallengeKey,
	)
	if err != nil {
		return false, fmt.Errorf("insert attempt: %w", err)
	}
	return affected(result)
}

// IncrementProgress adds one day to the attempt for key unless it was
// already advanced on today. The daily streak moves in the same statement:
// unchanged when already active today, extended when last active yesterday,
// reset to 1 otherwise.
func (s *ProfileStore) IncrementProgress(ctx context.Context, userID, key, today, yesterday string) (bool, error) {
	const streakExpr = `CASE WHEN streak_last_day = ? THEN streak_current
		WHEN streak_last_day = ? THEN streak_current + 1
		ELSE 1 END`

	result, err := s.db.ExecContext(ctx,
		`UPDATE reward_profiles
		 SET active_attempts = (
		         SELECT json_group_array(json(
		             CASE WHEN json_extract(a.value, '$.challenge_key') = ?
		                  THEN json_set(a.value,
		                      '$.days_completed', json_extract(a.value, '$.days_completed') + 1,
		                      '$.last_progress_day', ?)
		                  ELSE a.value END))
		         FROM json_each(reward_profiles.active_attempts) AS a),
		     streak_current = `+streakExpr+`,
		     streak_longest = MAX(streak_longest, `+streakExpr+`),
		     streak_last_day = ?,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?
		   AND EXISTS (
		       SELECT 1 FROM json_each(reward_profiles.active_attempts) AS a
		       WHERE json_extract(a.value, '$.challenge_key') = ?
		         AND COALESCE(json_extract(a.value, '$.last_progress_day'), '') != ?)`,
		key, today,
		today, yesterday,
		today, yesterday,
		today,
		userID,
		key, today,
	)
	if err != nil {
		return false, fmt.Errorf("increment progress: %w", err)
	}
	return affected(result)
}

// ApplyCompletion is the compare-and-swap behind every point award. In one
// statement it appends the completion, adds its points to the total and drops
// the matching attempt, but only if no completion of the same key is newer
// than earliestAllowed. With requireAttempt set the attempt must also still
// be present. Returns the new total and whether the write applied.
func (s *ProfileStore) ApplyCompletion(ctx context.Context, userID string, rec model.CompletionRecord, earliestAllowed time.Time, requireAttempt bool) (int, bool, error) {
	doc, err := json.Marshal(toCompletionDoc(rec))
	if err != nil {
		return 0, false, fmt.Errorf("encode completion: %w", err)
	}

	var total int
	err = s.db.QueryRowContext(ctx,
		`UPDATE reward_profiles
		 SET total_points = total_points + ?,
		     completions = json_insert(completions, '$[#]', json(?)),
		     active_attempts = (
		         SELECT json_group_array(json(a.value))
		         FROM json_each(reward_profiles.active_attempts) AS a
		         WHERE json_extract(a.value, '$.challenge_key') != ?),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?
		   AND NOT EXISTS (
		       SELECT 1 FROM json_each(reward_profiles.completions) AS c
		       WHERE json_extract(c.value, '$.challenge_key') = ?
		         AND json_extract(c.value, '$.completed_at') > ?)
		   AND (? = 0 OR EXISTS (
		       SELECT 1 FROM json_each(reward_profiles.active_attempts) AS a
		       WHERE json_extract(a.value, '$.challenge_key') = ?))
		 RETURNING total_points`,
		rec.PointsAwarded, string(doc), rec.ChallengeKey,
		userID,
		rec.ChallengeKey, earliestAllowed.UnixMilli(),
		requireAttempt, rec.ChallengeKey,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("apply completion: %w", err)
	}
	return total, true, nil
}

// RemoveAttempt drops the attempt for key. Returns false if there was none.
func (s *ProfileStore) RemoveAttempt(ctx context.Context, userID, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reward_profiles
		 SET active_attempts = (
		         SELECT json_group_array(json(a.value))
		         FROM json_each(reward_profiles.active_attempts) AS a
		         WHERE json_extract(a.value, '$.challenge_key') != ?),
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ?
		   AND EXISTS (
		       SELECT 1 FROM json_each(reward_profiles.active_attempts) AS a
		       WHERE json_extract(a.value, '$.challenge_key') = ?)`,
		key, userID, key,
	)
	if err != nil {
		return false, fmt.Errorf("remove attempt: %w", err)
	}
	return affected(result)
}

// TopByPoints returns up to limit profiles ordered by points DESC, user_id ASC.
// Rank is left zero for the caller to fill in.
func (s *ProfileStore) TopByPoints(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, display_name, total_points FROM reward_profiles
		 ORDER BY total_points DESC, user_id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list top profiles: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.TotalPoints); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountAbove returns the number of profiles with strictly more points.
func (s *ProfileStore) CountAbove(ctx context.Context, points int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reward_profiles WHERE total_points > ?`, points).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count profiles above: %w", err)
	}
	return n, nil
}

func (s *ProfileStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reward_profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
