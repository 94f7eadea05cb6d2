package model

import "time"

// DayLayout is the calendar-day format used for progress and streak tracking.
const DayLayout = "2006-01-02"

type ActiveAttempt struct {
	ChallengeKey    string    `json:"challenge_key"`
	Title           string    `json:"title"`
	Points          int       `json:"points"`
	RequiredDays    int       `json:"required_days"`
	CooldownHours   int       `json:"cooldown_hours"`
	StartedAt       time.Time `json:"started_at"`
	DaysCompleted   int       `json:"days_completed"`
	LastProgressDay string    `json:"last_progress_day,omitempty"`
}

// Definition rebuilds the challenge snapshot the attempt was started with.
func (a ActiveAttempt) Definition() ChallengeDefinition {
	return ChallengeDefinition{
		Key:           a.ChallengeKey,
		Title:         a.Title,
		Points:        a.Points,
		RequiredDays:  a.RequiredDays,
		CooldownHours: a.CooldownHours,
	}
}

type CompletionRecord struct {
	ID            string    `json:"id"`
	ChallengeKey  string    `json:"challenge_key"`
	Title         string    `json:"title"`
	CompletedAt   time.Time `json:"completed_at"`
	PointsAwarded int       `json:"points_awarded"`
}

type Streak struct {
	Current         int    `json:"current"`
	Longest         int    `json:"longest"`
	LastActivityDay string `json:"last_activity_day,omitempty"`
}

type RewardProfile struct {
	UserID         string             `json:"user_id"`
	DisplayName    string             `json:"display_name"`
	TotalPoints    int                `json:"total_points"`
	ActiveAttempts []ActiveAttempt    `json:"active_attempts"`
	Completions    []CompletionRecord `json:"completions"`
	Streak         Streak             `json:"streak"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// FindAttempt returns the active attempt for key, or nil.
func (p *RewardProfile) FindAttempt(key string) *ActiveAttempt {
	for i := range p.ActiveAttempts {
		if p.ActiveAttempts[i].ChallengeKey == key {
			return &p.ActiveAttempts[i]
		}
	}
	return nil
}

// LatestCompletion returns the most recent completion of key, or nil.
func (p *RewardProfile) LatestCompletion(key string) *CompletionRecord {
	var latest *CompletionRecord
	for i := range p.Completions {
		c := &p.Completions[i]
		if c.ChallengeKey != key {
			continue
		}
		if latest == nil || c.CompletedAt.After(latest.CompletedAt) {
			latest = c
		}
	}
	return latest
}

type LedgerEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ChallengeKey  string    `json:"challenge_key"`
	PointsAwarded int       `json:"points_awarded"`
	Reason        string    `json:"reason"`
	CompletionID  string    `json:"completion_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalPoints int    `json:"total_points"`
}

type RankResult struct {
	Rank        int `json:"rank"`
	TotalPoints int `json:"total_points"`
}
