package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/models"
)

// SummaryRepo holds the rollup documents, one per window.
type SummaryRepo struct {
	pool *pgxpool.Pool
}

func NewSummaryRepo(pool *pgxpool.Pool) *SummaryRepo {
	return &SummaryRepo{pool: pool}
}

func (r *SummaryRepo) Put(ctx context.Context, window string, doc models.WindowSummary) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO study_summaries (window_name, doc, generated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (window_name) DO UPDATE SET doc = EXCLUDED.doc, generated_at = NOW()`,
		window, string(body),
	)
	return err
}

// Get returns pgx.ErrNoRows when the window has never been generated.
func (r *SummaryRepo) Get(ctx context.Context, window string) (models.WindowSummary, time.Time, error) {
	var (
		raw         []byte
		generatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT doc, generated_at FROM study_summaries WHERE window_name = $1`, window,
	).Scan(&raw, &generatedAt)
	if err != nil {
		return nil, time.Time{}, err
	}
	doc := models.WindowSummary{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, time.Time{}, err
	}
	return doc, generatedAt, nil
}
