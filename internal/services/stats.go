package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

// StatsService aggregates recorded sessions. Entries still in progress are
// never counted.
type StatsService struct {
	users     UserStore
	logs      LogStore
	summaries SummaryStore
	loc       *time.Location
	now       func() time.Time
}

func NewStatsService(users UserStore, logs LogStore, summaries SummaryStore, loc *time.Location) *StatsService {
	return &StatsService{users: users, logs: logs, summaries: summaries, loc: loc, now: time.Now}
}

// target resolves whose data is requested. Only teachers may look at another
// user.
func (s *StatsService) target(ctx context.Context, viewerID, studentID string) (string, error) {
	if studentID == "" || studentID == viewerID {
		return viewerID, nil
	}
	viewer, err := s.users.GetByEmail(ctx, viewerID)
	if err != nil {
		return "", err
	}
	if !viewer.Teacher {
		return "", &ForbiddenError{Message: "Only teachers can view other students"}
	}
	return studentID, nil
}

func (s *StatsService) Daily(ctx context.Context, viewerID, studentID, date string) (*models.DailyBreakdown, error) {
	if err := checkDate(date); err != nil {
		return nil, err
	}
	userID, err := s.target(ctx, viewerID, studentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.logs.GetDay(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	return dailyBreakdown(date, entries), nil
}

func dailyBreakdown(date string, entries []models.PomodoroLogEntry) *models.DailyBreakdown {
	out := &models.DailyBreakdown{Date: date, Topics: []models.TopicTotal{}}
	index := make(map[string]int)
	for _, e := range entries {
		if e.Duration == nil {
			continue
		}
		i, ok := index[e.Topic]
		if !ok {
			i = len(out.Topics)
			index[e.Topic] = i
			out.Topics = append(out.Topics, models.TopicTotal{Topic: e.Topic, Subject: e.Subject})
		}
		out.Topics[i].Minutes += *e.Duration
		out.TotalMinutes += *e.Duration
	}
	sort.SliceStable(out.Topics, func(a, b int) bool {
		return out.Topics[a].Minutes > out.Topics[b].Minutes
	})
	return out
}

// Trend returns per-day totals for the last days days, oldest first, ending
// today.
func (s *StatsService) Trend(ctx context.Context, viewerID, studentID string, days int) ([]models.DayTotal, error) {
	if days != 7 && days != 30 {
		return nil, &ValidationError{Fields: map[string]string{"days": "Days must be 7 or 30"}}
	}
	userID, err := s.target(ctx, viewerID, studentID)
	if err != nil {
		return nil, err
	}
	doc, err := s.logs.All(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.now().In(s.loc)
	out := make([]models.DayTotal, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format(schedule.DateFormat)
		out = append(out, models.DayTotal{Date: date, Minutes: sumMinutes(doc[date])})
	}
	return out, nil
}

// Stacked returns per-topic minutes for each of days days starting at from.
func (s *StatsService) Stacked(ctx context.Context, viewerID, studentID, from string, days int) (*models.StackedSeries, error) {
	start, err := time.ParseInLocation(schedule.DateFormat, from, s.loc)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"from": "Date must be YYYY-MM-DD"}}
	}
	if days < 1 || days > 31 {
		return nil, &ValidationError{Fields: map[string]string{"days": "Days must be 1-31"}}
	}
	userID, err := s.target(ctx, viewerID, studentID)
	if err != nil {
		return nil, err
	}
	doc, err := s.logs.All(ctx, userID)
	if err != nil {
		return nil, err
	}

	series := &models.StackedSeries{
		Days:         make([]models.DaySeries, 0, days),
		TopicSubject: make(map[string]string),
	}
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(schedule.DateFormat)
		day := models.DaySeries{Date: date, Topics: make(map[string]int)}
		for _, e := range doc[date] {
			if e.Duration == nil {
				continue
			}
			day.Topics[e.Topic] += *e.Duration
			if _, ok := series.TopicSubject[e.Topic]; !ok {
				series.TopicSubject[e.Topic] = e.Subject
			}
		}
		series.Days = append(series.Days, day)
	}
	return series, nil
}

func (s *StatsService) Summary(ctx context.Context, window string) (models.WindowSummary, time.Time, error) {
	if !validWindow(window) {
		return nil, time.Time{}, &NotFoundError{Message: "Unknown summary window"}
	}
	doc, generated, err := s.summaries.Get(ctx, window)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, &NotFoundError{Message: "Summary has not been generated yet"}
	}
	return doc, generated, err
}

func validWindow(w string) bool {
	switch w {
	case models.WindowYesterday, models.WindowWeek, models.WindowMonth:
		return true
	}
	return false
}

func sumMinutes(entries []models.PomodoroLogEntry) int {
	total := 0
	for _, e := range entries {
		if e.Duration != nil {
			total += *e.Duration
		}
	}
	return total
}
