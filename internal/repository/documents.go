package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/database"
	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

const (
	collectionPlans = "studyPlans"
	collectionLogs  = "studyPomodoroLogs"
)

// Quarantined is a stored fragment that failed validation on read. It never
// reaches callers; it is moved to quarantined_entries on the next write of its day.
type Quarantined struct {
	DateKey string
	Raw     json.RawMessage
	Reason  string
}

func validDateKey(date string) bool {
	_, err := time.Parse(schedule.DateFormat, date)
	return err == nil
}

// decodePlanDay validates one day of the plan document. Entries come back
// tagged with their day and the hour bucket of their start.
func decodePlanDay(date string, raw json.RawMessage) (models.DayPlans, []Quarantined) {
	day := models.DayPlans{}
	if len(raw) == 0 || string(raw) == "null" {
		return day, nil
	}
	if !validDateKey(date) {
		return day, []Quarantined{{DateKey: date, Raw: raw, Reason: "invalid date key"}}
	}

	var buckets map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return day, []Quarantined{{DateKey: date, Raw: raw, Reason: "malformed day: " + err.Error()}}
	}

	var bad []Quarantined
	for _, entries := range buckets {
		for _, rawEntry := range entries {
			var e models.StudyPlanEntry
			if err := json.Unmarshal(rawEntry, &e); err != nil {
				bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: "malformed entry: " + err.Error()})
				continue
			}
			if e.Date == "" {
				e.Date = date
			}
			start, _, err := schedule.Bounds(e)
			if err != nil {
				bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: err.Error()})
				continue
			}
			if e.Date != date {
				bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: "entry date does not match its day"})
				continue
			}
			// Buckets follow the start hour even if the stored key disagrees.
			e.Hour = start.HourBucket()
			day[e.Hour] = append(day[e.Hour], e)
		}
	}
	return day, bad
}

func decodePlanDocument(raw json.RawMessage) (models.PlanDocument, []Quarantined, error) {
	doc := models.PlanDocument{}
	if len(raw) == 0 || string(raw) == "null" {
		return doc, nil, nil
	}
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, nil, fmt.Errorf("decode plan document: %w", err)
	}
	var bad []Quarantined
	for date, rawDay := range days {
		day, q := decodePlanDay(date, rawDay)
		bad = append(bad, q...)
		if len(day) > 0 {
			doc[date] = day
		}
	}
	return doc, bad, nil
}

func decodeLogDay(date string, raw json.RawMessage) ([]models.PomodoroLogEntry, []Quarantined) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if !validDateKey(date) {
		return nil, []Quarantined{{DateKey: date, Raw: raw, Reason: "invalid date key"}}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, []Quarantined{{DateKey: date, Raw: raw, Reason: "malformed day: " + err.Error()}}
	}

	var (
		out []models.PomodoroLogEntry
		bad []Quarantined
	)
	for _, rawEntry := range entries {
		var e models.PomodoroLogEntry
		if err := json.Unmarshal(rawEntry, &e); err != nil {
			bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: "malformed entry: " + err.Error()})
			continue
		}
		if _, err := schedule.ParseClock(e.StartTime); err != nil {
			bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: err.Error()})
			continue
		}
		if e.Duration != nil && *e.Duration < 0 {
			bad = append(bad, Quarantined{DateKey: date, Raw: rawEntry, Reason: "negative duration"})
			continue
		}
		if e.Date == "" {
			e.Date = date
		}
		out = append(out, e)
	}
	return out, bad
}

func decodeLogDocument(raw json.RawMessage) (models.LogDocument, []Quarantined, error) {
	doc := models.LogDocument{}
	if len(raw) == 0 || string(raw) == "null" {
		return doc, nil, nil
	}
	var days map[string]json.RawMessage
	if err := json.Unmarshal(raw, &days); err != nil {
		return nil, nil, fmt.Errorf("decode log document: %w", err)
	}
	var bad []Quarantined
	for date, rawDay := range days {
		entries, q := decodeLogDay(date, rawDay)
		bad = append(bad, q...)
		if len(entries) > 0 {
			doc[date] = entries
		}
	}
	return doc, bad, nil
}

func logQuarantined(userID, collection string, bad []Quarantined) {
	for _, q := range bad {
		logger.Warn("quarantined stored entry", "user", userID, "collection", collection, "date", q.DateKey, "reason", q.Reason)
	}
}

// jsonDocs is one per-user JSONB document table.
type jsonDocs struct {
	pool       *pgxpool.Pool
	table      string
	collection string
}

func (d jsonDocs) day(ctx context.Context, userID, date string) (json.RawMessage, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc->($2::text) FROM %s WHERE user_id = $1`, d.table),
		userID, date,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return raw, err
}

func (d jsonDocs) all(ctx context.Context, userID string) (json.RawMessage, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE user_id = $1`, d.table),
		userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return raw, err
}

// updateDay locks the user's row and rewrites one day. fn receives the stored
// day and returns its replacement plus the fragments to quarantine; a nil
// replacement removes the day.
func (d jsonDocs) updateDay(ctx context.Context, userID, date string, fn func(json.RawMessage) (json.RawMessage, []Quarantined, error)) error {
	return database.WithTx(ctx, d.pool, func(tx pgx.Tx) error {
		if err := d.lockRow(ctx, tx, userID); err != nil {
			return err
		}

		var raw []byte
		if err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT doc->($2::text) FROM %s WHERE user_id = $1`, d.table),
			userID, date,
		).Scan(&raw); err != nil {
			return fmt.Errorf("read %s day: %w", d.collection, err)
		}

		next, bad, err := fn(raw)
		if err != nil {
			return err
		}
		if err := saveQuarantined(ctx, tx, userID, d.collection, bad); err != nil {
			return err
		}

		if next == nil {
			_, err = tx.Exec(ctx,
				fmt.Sprintf(`UPDATE %s SET doc = doc - ($2::text), updated_at = NOW() WHERE user_id = $1`, d.table),
				userID, date,
			)
		} else {
			_, err = tx.Exec(ctx,
				fmt.Sprintf(`UPDATE %s SET doc = jsonb_set(doc, ARRAY[$2::text], $3::jsonb), updated_at = NOW() WHERE user_id = $1`, d.table),
				userID, date, string(next),
			)
		}
		if err != nil {
			return fmt.Errorf("write %s day: %w", d.collection, err)
		}
		return nil
	})
}

// updateAll rewrites the whole document under the row lock.
func (d jsonDocs) updateAll(ctx context.Context, userID string, fn func(json.RawMessage) (json.RawMessage, []Quarantined, error)) error {
	return database.WithTx(ctx, d.pool, func(tx pgx.Tx) error {
		if err := d.lockRow(ctx, tx, userID); err != nil {
			return err
		}

		var raw []byte
		if err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT doc FROM %s WHERE user_id = $1`, d.table),
			userID,
		).Scan(&raw); err != nil {
			return fmt.Errorf("read %s: %w", d.collection, err)
		}

		next, bad, err := fn(raw)
		if err != nil {
			return err
		}
		if err := saveQuarantined(ctx, tx, userID, d.collection, bad); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET doc = $2::jsonb, updated_at = NOW() WHERE user_id = $1`, d.table),
			userID, string(next),
		); err != nil {
			return fmt.Errorf("write %s: %w", d.collection, err)
		}
		return nil
	})
}

func (d jsonDocs) lockRow(ctx context.Context, tx pgx.Tx, userID string) error {
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, d.table),
		userID,
	); err != nil {
		return fmt.Errorf("ensure %s row: %w", d.collection, err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`SELECT 1 FROM %s WHERE user_id = $1 FOR UPDATE`, d.table),
		userID,
	); err != nil {
		return fmt.Errorf("lock %s row: %w", d.collection, err)
	}
	return nil
}

func saveQuarantined(ctx context.Context, tx pgx.Tx, userID, collection string, bad []Quarantined) error {
	for _, q := range bad {
		raw := q.Raw
		if !json.Valid(raw) {
			quoted, _ := json.Marshal(string(raw))
			raw = quoted
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO quarantined_entries (id, user_id, collection, date_key, raw, reason) VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
			uuid.New(), userID, collection, q.DateKey, string(raw), q.Reason,
		); err != nil {
			return fmt.Errorf("quarantine %s entry: %w", collection, err)
		}
		logger.Warn("moved entry to quarantine", "user", userID, "collection", collection, "date", q.DateKey, "reason", q.Reason)
	}
	return nil
}
