package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
)

// ActiveSessionRepo stores one presence announcement per user. A Put replaces
// whatever the user announced before.
type ActiveSessionRepo struct {
	pool *pgxpool.Pool
}

func NewActiveSessionRepo(pool *pgxpool.Pool) *ActiveSessionRepo {
	return &ActiveSessionRepo{pool: pool}
}

func (r *ActiveSessionRepo) Put(ctx context.Context, userID string, a models.ActiveSession) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO active_pomodoro_users (user_id, doc, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
		userID, string(doc),
	)
	return err
}

func (r *ActiveSessionRepo) Delete(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM active_pomodoro_users WHERE user_id = $1`, userID)
	return err
}

// List returns every announcement, oldest first. Undecodable rows are skipped.
func (r *ActiveSessionRepo) List(ctx context.Context) ([]models.ActiveSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, doc FROM active_pomodoro_users ORDER BY updated_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.ActiveSession, 0)
	for rows.Next() {
		var (
			userID string
			raw    []byte
		)
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, err
		}
		var a models.ActiveSession
		if err := json.Unmarshal(raw, &a); err != nil {
			logger.Warn("skipping malformed announcement", "user", userID, "err", err)
			continue
		}
		a.Email = userID
		sessions = append(sessions, a)
	}
	return sessions, rows.Err()
}
