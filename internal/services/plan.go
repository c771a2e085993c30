package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

type PlanService struct {
	plans PlanStore
	loc   *time.Location
}

func NewPlanService(plans PlanStore, loc *time.Location) *PlanService {
	return &PlanService{plans: plans, loc: loc}
}

func (s *PlanService) Day(ctx context.Context, userID, date string) (models.DayPlans, error) {
	if err := checkDate(date); err != nil {
		return nil, err
	}
	day, err := s.plans.GetDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if day == nil {
		day = models.DayPlans{}
	}
	return day, nil
}

// Index builds the schedule index of the user's day.
func (s *PlanService) Index(ctx context.Context, userID, date string) (*schedule.Index, error) {
	day, err := s.Day(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return schedule.NewIndex(date, s.loc, day.Flatten()), nil
}

func (s *PlanService) Grid(ctx context.Context, userID, date string) ([]schedule.Slot, error) {
	ix, err := s.Index(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return ix.Grid(), nil
}

func (s *PlanService) Create(ctx context.Context, userID, date string, req models.SavePlanRequest) (models.StudyPlanEntry, error) {
	entry, start, err := buildEntry(date, req)
	if err != nil {
		return models.StudyPlanEntry{}, err
	}

	err = s.plans.UpdateDay(ctx, userID, date, func(day models.DayPlans) (models.DayPlans, error) {
		if day == nil {
			day = models.DayPlans{}
		}
		bucket := start.HourBucket()
		day[bucket] = append(day[bucket], entry)
		return day, nil
	})
	if err != nil {
		return models.StudyPlanEntry{}, err
	}
	entry.Hour = start.HourBucket()
	return entry, nil
}

// Update replaces the entry at ref. The entry moves to another bucket when
// its start hour changes.
func (s *PlanService) Update(ctx context.Context, userID, date string, ref models.EntryRef, req models.SavePlanRequest) (models.StudyPlanEntry, error) {
	entry, start, err := buildEntry(date, req)
	if err != nil {
		return models.StudyPlanEntry{}, err
	}

	err = s.plans.UpdateDay(ctx, userID, date, func(day models.DayPlans) (models.DayPlans, error) {
		if !refExists(day, ref) {
			return nil, &NotFoundError{Message: "Plan entry not found"}
		}
		bucket := start.HourBucket()
		if bucket == ref.Hour {
			day[bucket][ref.Index] = entry
			return day, nil
		}
		day[ref.Hour] = removeAt(day[ref.Hour], ref.Index)
		day[bucket] = append(day[bucket], entry)
		return day, nil
	})
	if err != nil {
		return models.StudyPlanEntry{}, err
	}
	entry.Hour = start.HourBucket()
	return entry, nil
}

func (s *PlanService) Delete(ctx context.Context, userID, date string, ref models.EntryRef, confirm bool) error {
	if err := checkDate(date); err != nil {
		return err
	}
	if !confirm {
		return &ConfirmationRequiredError{Message: "Deleting a plan entry must be confirmed"}
	}
	return s.plans.UpdateDay(ctx, userID, date, func(day models.DayPlans) (models.DayPlans, error) {
		if !refExists(day, ref) {
			return nil, &NotFoundError{Message: "Plan entry not found"}
		}
		day[ref.Hour] = removeAt(day[ref.Hour], ref.Index)
		return day, nil
	})
}

func buildEntry(date string, req models.SavePlanRequest) (models.StudyPlanEntry, schedule.Clock, error) {
	if err := checkDate(date); err != nil {
		return models.StudyPlanEntry{}, 0, err
	}

	entry := models.StudyPlanEntry{
		Date:    date,
		Start:   strings.TrimSpace(req.Start),
		End:     strings.TrimSpace(req.End),
		Subject: strings.TrimSpace(req.Subject),
		Topic:   strings.TrimSpace(req.Topic),
		Book:    strings.TrimSpace(req.Book),
		Content: strings.TrimSpace(req.Content),
	}

	fields := make(map[string]string)
	required := []struct{ name, value string }{
		{"start", entry.Start}, {"end", entry.End}, {"subject", entry.Subject},
		{"topic", entry.Topic}, {"book", entry.Book}, {"content", entry.Content},
	}
	for _, f := range required {
		if f.value == "" {
			fields[f.name] = "Required"
		}
	}
	if len(fields) > 0 {
		return models.StudyPlanEntry{}, 0, &ValidationError{Fields: fields}
	}

	start, _, err := schedule.Bounds(entry)
	if err != nil {
		if errors.Is(err, schedule.ErrInvalidClock) {
			return models.StudyPlanEntry{}, 0, &ValidationError{Fields: map[string]string{"time": "Times must be HH:MM"}}
		}
		return models.StudyPlanEntry{}, 0, err
	}
	return entry, start, nil
}

func checkDate(date string) error {
	if _, err := time.Parse(schedule.DateFormat, date); err != nil {
		return &ValidationError{Fields: map[string]string{"date": "Date must be YYYY-MM-DD"}}
	}
	return nil
}

func refExists(day models.DayPlans, ref models.EntryRef) bool {
	entries, ok := day[ref.Hour]
	return ok && ref.Index >= 0 && ref.Index < len(entries)
}

func removeAt(entries []models.StudyPlanEntry, i int) []models.StudyPlanEntry {
	out := make([]models.StudyPlanEntry, 0, len(entries)-1)
	out = append(out, entries[:i]...)
	return append(out, entries[i+1:]...)
}
