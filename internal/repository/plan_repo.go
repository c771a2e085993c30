package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tsureben-backend/internal/models"
)

type PlanRepo struct {
	docs jsonDocs
}

func NewPlanRepo(pool *pgxpool.Pool) *PlanRepo {
	return &PlanRepo{docs: jsonDocs{pool: pool, table: "study_plans", collection: collectionPlans}}
}

func (r *PlanRepo) GetDay(ctx context.Context, userID, date string) (models.DayPlans, error) {
	raw, err := r.docs.day(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	day, bad := decodePlanDay(date, raw)
	logQuarantined(userID, collectionPlans, bad)
	return day, nil
}

func (r *PlanRepo) All(ctx context.Context, userID string) (models.PlanDocument, error) {
	raw, err := r.docs.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	doc, bad, err := decodePlanDocument(raw)
	if err != nil {
		return nil, err
	}
	logQuarantined(userID, collectionPlans, bad)
	return doc, nil
}

// UpdateDay applies fn to the freshly read day under a row lock. An empty
// result removes the day from the document.
func (r *PlanRepo) UpdateDay(ctx context.Context, userID, date string, fn func(models.DayPlans) (models.DayPlans, error)) error {
	return r.docs.updateDay(ctx, userID, date, func(raw json.RawMessage) (json.RawMessage, []Quarantined, error) {
		day, bad := decodePlanDay(date, raw)
		next, err := fn(day)
		if err != nil {
			return nil, nil, err
		}
		next = compactDay(next)
		if len(next) == 0 {
			return nil, bad, nil
		}
		out, err := json.Marshal(stripHours(next))
		if err != nil {
			return nil, nil, fmt.Errorf("encode plan day: %w", err)
		}
		return out, bad, nil
	})
}

func (r *PlanRepo) UpdateAll(ctx context.Context, userID string, fn func(models.PlanDocument) (models.PlanDocument, error)) error {
	return r.docs.updateAll(ctx, userID, func(raw json.RawMessage) (json.RawMessage, []Quarantined, error) {
		doc, bad, err := decodePlanDocument(raw)
		if err != nil {
			return nil, nil, err
		}
		next, err := fn(doc)
		if err != nil {
			return nil, nil, err
		}
		stored := make(map[string]models.DayPlans, len(next))
		for date, day := range next {
			if day = compactDay(day); len(day) > 0 {
				stored[date] = stripHours(day)
			}
		}
		out, err := json.Marshal(stored)
		if err != nil {
			return nil, nil, fmt.Errorf("encode plan document: %w", err)
		}
		return out, bad, nil
	})
}

func compactDay(day models.DayPlans) models.DayPlans {
	for hour, entries := range day {
		if len(entries) == 0 {
			delete(day, hour)
		}
	}
	return day
}

// stripHours drops the bucket tag; it is the map key in storage.
func stripHours(day models.DayPlans) models.DayPlans {
	out := make(models.DayPlans, len(day))
	for hour, entries := range day {
		cp := make([]models.StudyPlanEntry, len(entries))
		for i, e := range entries {
			e.Hour = ""
			cp[i] = e
		}
		out[hour] = cp
	}
	return out
}
