package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/wellpoints/internal/ledger"
	"github.com/dukerupert/wellpoints/internal/metrics"
	"github.com/dukerupert/wellpoints/internal/model"
)

const (
	kindCanonical = "canonical"
	kindEphemeral = "ephemeral"
	kindProgress  = "progress"
)

// Catalog is the read side of the challenge catalog.
type Catalog interface {
	GetByKey(ctx context.Context, key string) (*model.ChallengeDefinition, error)
	ListActive(ctx context.Context) ([]model.ChallengeDefinition, error)
	CountActive(ctx context.Context) (int, error)
}

// Profiles stores reward profiles. Every mutating method is a conditional
// write that reports whether it applied.
type Profiles interface {
	Ensure(ctx context.Context, userID, displayName string) (*model.RewardProfile, error)
	Get(ctx context.Context, userID string) (*model.RewardProfile, error)
	InsertAttempt(ctx context.Context, userID string, attempt model.ActiveAttempt) (bool, error)
	IncrementProgress(ctx context.Context, userID, key, today, yesterday string) (bool, error)
	ApplyCompletion(ctx context.Context, userID string, rec model.CompletionRecord, earliestAllowed time.Time, requireAttempt bool) (int, bool, error)
	RemoveAttempt(ctx context.Context, userID, key string) (bool, error)
	TopByPoints(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	CountAbove(ctx context.Context, points int) (int, error)
	Count(ctx context.Context) (int, error)
}

// LedgerSink receives an entry for every award. It must not block.
type LedgerSink interface {
	Record(e model.LedgerEntry)
}

// LedgerReader answers audit queries against the ledger.
type LedgerReader interface {
	SumByUser(ctx context.Context, userID string) (int, error)
	Count(ctx context.Context) (int, error)
}

// User identifies the caller. DisplayName is optional and, when set,
// refreshes the name stored on the profile.
type User struct {
	ID          string
	DisplayName string
}

type Engine struct {
	catalog  Catalog
	profiles Profiles
	sink     LedgerSink
	audit    LedgerReader
	now      func() time.Time
	loc      *time.Location
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone that defines a calendar day for progress.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(catalog Catalog, profiles Profiles, sink LedgerSink, audit LedgerReader, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		profiles: profiles,
		sink:     sink,
		audit:    audit,
		now:      time.Now,
		loc:      time.UTC,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type StartResult struct {
	Attempt       model.ActiveAttempt `json:"attempt"`
	AlreadyActive bool                `json:"already_active"`
}

type CompletionResult struct {
	PointsAwarded int                    `json:"points_awarded"`
	NewTotal      int                    `json:"new_total"`
	Completion    model.CompletionRecord `json:"completion"`
}

type ProgressResult struct {
	Attempt             model.ActiveAttempt `json:"attempt"`
	AlreadyUpdatedToday bool                `json:"already_updated_today"`
	Completion          *CompletionResult   `json:"completion,omitempty"`
}

func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// resolve turns a reference into the definition to act on. A catalog entry
// with the same key wins over inline metadata.
func (e *Engine) resolve(ctx context.Context, ref model.ChallengeRef) (model.ChallengeDefinition, string, error) {
	if ref.Key == "" {
		return model.ChallengeDefinition{}, "", ErrInvalidChallenge
	}

	c, err := e.catalog.GetByKey(ctx, ref.Key)
	if err != nil {
		return model.ChallengeDefinition{}, "", err
	}
	if c != nil {
		if !c.Active {
			return model.ChallengeDefinition{}, "", ErrChallengeInactive
		}
		return *c, kindCanonical, nil
	}

	if ref.Definition == nil {
		return model.ChallengeDefinition{}, "", ErrChallengeNotFound
	}
	def := *ref.Definition
	def.Key = ref.Key
	if err := def.Validate(); err != nil {
		return model.ChallengeDefinition{}, "", fmt.Errorf("%w: %v", ErrInvalidChallenge, err)
	}
	return def, kindEphemeral, nil
}

// cooldownRemaining returns how long until key may be completed again.
func cooldownRemaining(profile *model.RewardProfile, def model.ChallengeDefinition, now time.Time) time.Duration {
	latest := profile.LatestCompletion(def.Key)
	if latest == nil {
		return 0
	}
	return latest.CompletedAt.Add(def.Cooldown()).Sub(now)
}

func (e *Engine) checkCooldown(profile *model.RewardProfile, def model.ChallengeDefinition, now time.Time, operation string) error {
	if remaining := cooldownRemaining(profile, def, now); remaining > 0 {
		e.metrics.CooldownRejected(operation)
		return &CooldownError{Key: def.Key, Remaining: remaining}
	}
	return nil
}

// StartChallenge opens an attempt for the user. Starting a challenge that is
// already active is not an error: the existing attempt is returned.
func (e *Engine) StartChallenge(ctx context.Context, user User, ref model.ChallengeRef) (*StartResult, error) {
	def, kind, err := e.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	profile, err := e.profiles.Ensure(ctx, user.ID, user.DisplayName)
	if err != nil {
		return nil, err
	}
	if existing := profile.FindAttempt(def.Key); existing != nil {
		return &StartResult{Attempt: *existing, AlreadyActive: true}, nil
	}

	now := e.clock()
	if err := e.checkCooldown(profile, def, now, "start"); err != nil {
		return nil, err
	}

	attempt := model.ActiveAttempt{
		ChallengeKey:  def.Key,
		Title:         def.DisplayTitle(),
		Points:        def.Points,
		RequiredDays:  def.RequiredDays,
		CooldownHours: def.CooldownHours,
		StartedAt:     now,
	}
	ok, err := e.profiles.InsertAttempt(ctx, user.ID, attempt)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent start got there first.
		profile, err = e.profiles.Get(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if profile != nil {
			if existing := profile.FindAttempt(def.Key); existing != nil {
				return &StartResult{Attempt: *existing, AlreadyActive: true}, nil
			}
		}
		return nil, fmt.Errorf("start challenge %s: attempt not recorded", def.Key)
	}

	e.metrics.ChallengeStarted(kind)
	e.logger.Info("challenge started", "user_id", user.ID, "challenge_key", def.Key, "kind", kind)
	return &StartResult{Attempt: attempt}, nil
}

// RecordProgress advances a multi-day attempt by at most one day per calendar
// day. When the attempt reaches its required days it is completed in the same
// call.
func (e *Engine) RecordProgress(ctx context.Context, userID, key string) (*ProgressResult, error) {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	attempt := profile.FindAttempt(key)
	if attempt == nil {
		return nil, ErrNotStarted
	}

	now := e.clock()
	local := now.In(e.loc)
	today := local.Format(model.DayLayout)
	yesterday := local.AddDate(0, 0, -1).Format(model.DayLayout)

	if attempt.LastProgressDay == today {
		e.metrics.Progress("already_updated")
		return &ProgressResult{Attempt: *attempt, AlreadyUpdatedToday: true}, nil
	}

	ok, err := e.profiles.IncrementProgress(ctx, userID, key, today, yesterday)
	if err != nil {
		return nil, err
	}

	profile, err = e.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	attempt = profile.FindAttempt(key)
	if attempt == nil {
		return nil, ErrNotStarted
	}
	if !ok {
		e.metrics.Progress("already_updated")
		return &ProgressResult{Attempt: *attempt, AlreadyUpdatedToday: true}, nil
	}

	e.metrics.Progress("recorded")
	e.logger.Debug("progress recorded", "user_id", userID, "challenge_key", key,
		"days_completed", attempt.DaysCompleted, "required_days", attempt.RequiredDays)

	result := &ProgressResult{Attempt: *attempt}
	if attempt.DaysCompleted < attempt.RequiredDays {
		return result, nil
	}

	completion, err := e.award(ctx, userID, attempt.Definition(), kindProgress, now, true)
	if err != nil {
		return result, err
	}
	result.Completion = completion
	return result, nil
}

// CompleteChallenge awards the challenge's points. Canonical challenges need
// an active attempt; ephemeral ones are started implicitly. At most one
// completion per key is accepted inside the cooldown window, whatever the
// number of concurrent callers.
func (e *Engine) CompleteChallenge(ctx context.Context, user User, ref model.ChallengeRef) (*CompletionResult, error) {
	def, kind, err := e.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var profile *model.RewardProfile
	if kind == kindEphemeral {
		profile, err = e.profiles.Ensure(ctx, user.ID, user.DisplayName)
	} else {
		profile, err = e.profiles.Get(ctx, user.ID)
	}
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	now := e.clock()
	if err := e.checkCooldown(profile, def, now, "complete"); err != nil {
		return nil, err
	}

	requireAttempt := kind == kindCanonical
	if requireAttempt && profile.FindAttempt(def.Key) == nil {
		return nil, ErrNotStarted
	}
	if !requireAttempt {
		if attempt := profile.FindAttempt(def.Key); attempt != nil {
			e.logger.Debug("ephemeral completion replaces active attempt",
				"user_id", user.ID, "challenge_key", def.Key, "days_completed", attempt.DaysCompleted)
		}
	}

	return e.award(ctx, user.ID, def, kind, now, requireAttempt)
}

// award performs the conditional write and, if it applied, queues the ledger
// entry. A rejected write is explained from a fresh read of the profile.
func (e *Engine) award(ctx context.Context, userID string, def model.ChallengeDefinition, kind string, now time.Time, requireAttempt bool) (*CompletionResult, error) {
	rec := model.CompletionRecord{
		ID:            uuid.NewString(),
		ChallengeKey:  def.Key,
		Title:         def.DisplayTitle(),
		CompletedAt:   now,
		PointsAwarded: def.Points,
	}

	total, ok, err := e.profiles.ApplyCompletion(ctx, userID, rec, now.Add(-def.Cooldown()), requireAttempt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.explainRejection(ctx, userID, def, now)
	}

	e.metrics.Awarded(kind, def.Points)
	e.logger.Info("challenge completed", "user_id", userID, "challenge_key", def.Key,
		"points", def.Points, "total_points", total, "kind", kind)

	if e.sink != nil {
		e.sink.Record(model.LedgerEntry{
			UserID:        userID,
			ChallengeKey:  def.Key,
			PointsAwarded: def.Points,
			Reason:        ledger.Reason(def.DisplayTitle()),
			CompletionID:  rec.ID,
			CreatedAt:     now,
		})
	}

	return &CompletionResult{PointsAwarded: def.Points, NewTotal: total, Completion: rec}, nil
}

func (e *Engine) explainRejection(ctx context.Context, userID string, def model.ChallengeDefinition, now time.Time) error {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrProfileNotFound
	}
	if remaining := cooldownRemaining(profile, def, now); remaining > 0 {
		e.metrics.CooldownRejected("complete")
		return &CooldownError{Key: def.Key, Remaining: remaining}
	}
	return ErrNotStarted
}

// CancelChallenge abandons an active attempt without awarding points.
func (e *Engine) CancelChallenge(ctx context.Context, userID, key string) error {
	profile, err := e.profiles.Get(ctx, userID)
	if err != nil {
		return err
	}
	if profile == nil {
		return ErrProfileNotFound
	}
	ok, err := e.profiles.RemoveAttempt(ctx, userID, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStarted
	}
	e.logger.Info("challenge cancelled", "user_id", userID, "challenge_key", key)
	return nil
}

// ListChallenges returns the active catalog.
func (e *Engine) ListChallenges(ctx context.Context) ([]model.ChallengeDefinition, error) {
	list, err := e.catalog.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.ChallengeDefinition{}
	}
	return list, nil
}

// Profile returns the caller's profile, creating it on first access.
func (e *Engine) Profile(ctx context.Context, user User) (*model.RewardProfile, error) {
	return e.profiles.Ensure(ctx, user.ID, user.DisplayName)
}
