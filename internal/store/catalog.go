package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/wellpoints/internal/model"
)

type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.ChallengeDefinition, error) {
	var c model.ChallengeDefinition
	var active int

	err := scanner.Scan(&c.ID, &c.Key, &c.Title, &c.Description, &c.Points, &c.Category,
		&c.RequiredDays, &c.CooldownHours, &active, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Active = active != 0
	return &c, nil
}

const challengeCols = `id, key, title, description, points, category, required_days, cooldown_hours, active, created_at`

func (s *CatalogStore) Create(ctx context.Context, def model.ChallengeDefinition) (*model.ChallengeDefinition, error) {
	var a int
	if def.Active {
		a = 1
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (key, title, description, points, category, required_days, cooldown_hours, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		def.Key, def.Title, def.Description, def.Points, def.Category, def.RequiredDays, def.CooldownHours, a,
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *CatalogStore) GetByID(ctx context.Context, id int64) (*model.ChallengeDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *CatalogStore) GetByKey(ctx context.Context, key string) (*model.ChallengeDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+challengeCols+` FROM challenges WHERE key = ?`, key)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge by key: %w", err)
	}
	return c, nil
}

// List returns every catalog entry, oldest first.
func (s *CatalogStore) List(ctx context.Context) ([]model.ChallengeDefinition, error) {
	return s.query(ctx, `SELECT `+challengeCols+` FROM challenges ORDER BY created_at ASC, id ASC`)
}

// ListActive returns active entries ordered by creation time, oldest first.
// Rows created in the same second fall back to insertion order.
func (s *CatalogStore) ListActive(ctx context.Context) ([]model.ChallengeDefinition, error) {
	return s.query(ctx, `SELECT `+challengeCols+` FROM challenges WHERE active = 1 ORDER BY created_at ASC, id ASC`)
}

func (s *CatalogStore) query(ctx context.Context, q string, args ...any) ([]model.ChallengeDefinition, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []model.ChallengeDefinition
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

// SetActive toggles a catalog entry. Attempts already in progress are not
// touched. Returns nil when the key does not exist.
func (s *CatalogStore) SetActive(ctx context.Context, key string, active bool) (*model.ChallengeDefinition, error) {
	var a int
	if active {
		a = 1
	}

	result, err := s.db.ExecContext(ctx, `UPDATE challenges SET active = ? WHERE key = ?`, a, key)
	if err != nil {
		return nil, fmt.Errorf("update challenge active: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return s.GetByKey(ctx, key)
}

func (s *CatalogStore) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges WHERE active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active challenges: %w", err)
	}
	return n, nil
}
