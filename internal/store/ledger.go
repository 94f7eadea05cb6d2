package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/dukerupert/wellpoints/internal/model"
)

// LedgerStore is the append-only audit trail of point awards. It is never
// consulted when computing a balance.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerCols = `id, user_id, challenge_key, points_awarded, reason, completion_id, created_at`

func scanLedgerEntry(scanner interface{ Scan(...any) error }) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	err := scanner.Scan(&e.ID, &e.UserID, &e.ChallengeKey, &e.PointsAwarded, &e.Reason, &e.CompletionID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Append inserts an entry. Re-appending the same completion is a no-op.
func (s *LedgerStore) Append(ctx context.Context, e model.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO point_ledger (id, user_id, challenge_key, points_awarded, reason, completion_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(completion_id) DO NOTHING`,
		e.ID, e.UserID, e.ChallengeKey, e.PointsAwarded, e.Reason, e.CompletionID,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListByUser returns a user's entries, newest first.
func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerCols+` FROM point_ledger WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *LedgerStore) SumByUser(ctx context.Context, userID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_awarded), 0) FROM point_ledger WHERE user_id = ?`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum ledger points: %w", err)
	}
	return sum, nil
}

func (s *LedgerStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM point_ledger`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}
