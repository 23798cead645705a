package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGStore keeps usage counters in Postgres.
type PGStore struct {
	db           *sql.DB
	defaultLimit int
}

func NewPGStore(db *sql.DB, defaultLimit int) *PGStore {
	return &PGStore{db: db, defaultLimit: defaultLimit}
}

func (s *PGStore) Get(ctx context.Context, userID string) (Usage, error) {
	var u Usage
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, plan, limit_amount, used, resets_at
		FROM usage
		WHERE user_id = $1
	`, userID).Scan(&u.UserID, &u.Plan, &u.Limit, &u.Used, &u.ResetsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{
			UserID:   userID,
			Plan:     PlanFree,
			Limit:    s.defaultLimit,
			Used:     0,
			ResetsAt: nextReset(time.Now().UTC()),
		}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("get usage: %w", err)
	}
	return u, nil
}

// Increment bumps the counter with a single upsert so concurrent callers
// never lose an update.
func (s *PGStore) Increment(ctx context.Context, userID string) (Usage, error) {
	var u Usage
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO usage (user_id, plan, limit_amount, used, resets_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id) DO UPDATE SET used = usage.used + 1
		RETURNING user_id, plan, limit_amount, used, resets_at
	`, userID, PlanFree, s.defaultLimit, nextReset(time.Now().UTC())).
		Scan(&u.UserID, &u.Plan, &u.Limit, &u.Used, &u.ResetsAt)
	if err != nil {
		return Usage{}, fmt.Errorf("increment usage: %w", err)
	}
	return u, nil
}

func nextReset(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}

var _ Store = (*PGStore)(nil)
