package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/models"
)

type PomodoroLogRepo struct {
	pool *pgxpool.Pool
	docs jsonDocs
}

func NewPomodoroLogRepo(pool *pgxpool.Pool) *PomodoroLogRepo {
	return &PomodoroLogRepo{
		pool: pool,
		docs: jsonDocs{pool: pool, table: "study_pomodoro_logs", collection: collectionLogs},
	}
}

func (r *PomodoroLogRepo) GetDay(ctx context.Context, userID, date string) ([]models.PomodoroLogEntry, error) {
	raw, err := r.docs.day(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	entries, bad := decodeLogDay(date, raw)
	logQuarantined(userID, collectionLogs, bad)
	return entries, nil
}

func (r *PomodoroLogRepo) All(ctx context.Context, userID string) (models.LogDocument, error) {
	raw, err := r.docs.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, bad, err := decodeLogDocument(raw)
	if err != nil {
		return nil, err
	}
	logQuarantined(userID, collectionLogs, bad)
	return doc, nil
}

// Append adds entry at the end of the day.
func (r *PomodoroLogRepo) Append(ctx context.Context, userID, date string, entry models.PomodoroLogEntry) error {
	return r.UpdateDay(ctx, userID, date, func(entries []models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error) {
		return append(entries, entry), nil
	})
}

// UpdateDay applies fn to the freshly read day under a row lock. Nothing is
// written when fn fails.
func (r *PomodoroLogRepo) UpdateDay(ctx context.Context, userID, date string, fn func([]models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error)) error {
	return r.docs.updateDay(ctx, userID, date, func(raw json.RawMessage) (json.RawMessage, []Quarantined, error) {
		entries, bad := decodeLogDay(date, raw)
		next, err := fn(entries)
		if err != nil {
			return nil, nil, err
		}
		if len(next) == 0 {
			return nil, bad, nil
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, nil, fmt.Errorf("encode log day: %w", err)
		}
		return out, bad, nil
	})
}

func (r *PomodoroLogRepo) UpdateAll(ctx context.Context, userID string, fn func(models.LogDocument) (models.LogDocument, error)) error {
	return r.docs.updateAll(ctx, userID, func(raw json.RawMessage) (json.RawMessage, []Quarantined, error) {
		doc, bad, err := decodeLogDocument(raw)
		if err != nil {
			return nil, nil, err
		}
		next, err := fn(doc)
		if err != nil {
			return nil, nil, err
		}
		for date, entries := range next {
			if len(entries) == 0 {
				delete(next, date)
			}
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, nil, fmt.Errorf("encode log document: %w", err)
		}
		return out, bad, nil
	})
}

// ListAll returns every user's log document, keyed by user id.
func (r *PomodoroLogRepo) ListAll(ctx context.Context) (map[string]models.LogDocument, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, doc FROM study_pomodoro_logs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.LogDocument)
	for rows.Next() {
		var (
			userID string
			raw    []byte
		)
		if err := rows.Scan(&userID, &raw); err != nil {
			return nil, err
		}
		doc, bad, err := decodeLogDocument(raw)
		if err != nil {
			logQuarantined(userID, collectionLogs, []Quarantined{{DateKey: "*", Raw: raw, Reason: err.Error()}})
			continue
		}
		logQuarantined(userID, collectionLogs, bad)
		out[userID] = doc
	}
	return out, rows.Err()
}
