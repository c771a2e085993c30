package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tsureben-backend/internal/models"
)

func seededStats() (*StatsService, *fakeLogs, *fakeSummaries) {
	users := newFakeUsers(
		models.User{Email: "taro@school.jp", Grade: "高3"},
		models.User{Email: "hana@school.jp", Grade: "高3"},
		models.User{Email: "1@school.jp", Teacher: true},
	)
	logs := newFakeLogs()
	ctx := context.Background()
	logs.Append(ctx, "taro@school.jp", "2024-06-01", models.PomodoroLogEntry{Date: "2024-06-01", Subject: "数学", Topic: "数II", Duration: minutes(25)})
	logs.Append(ctx, "taro@school.jp", "2024-06-01", models.PomodoroLogEntry{Date: "2024-06-01", Subject: "英語", Topic: "長文", Duration: minutes(50)})
	logs.Append(ctx, "taro@school.jp", "2024-06-01", models.PomodoroLogEntry{Date: "2024-06-01", Subject: "数学", Topic: "数II", Duration: minutes(30)})
	logs.Append(ctx, "taro@school.jp", "2024-06-01", models.PomodoroLogEntry{Date: "2024-06-01", Subject: "数学", Topic: "数B"})
	logs.Append(ctx, "taro@school.jp", "2024-05-30", models.PomodoroLogEntry{Date: "2024-05-30", Subject: "英語", Topic: "長文", Duration: minutes(40)})

	summaries := &fakeSummaries{}
	s := NewStatsService(users, logs, summaries, jst)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 21, 0, 0, 0, jst) }
	return s, logs, summaries
}

func TestDailyBreakdown(t *testing.T) {
	s, _, _ := seededStats()

	d, err := s.Daily(context.Background(), "taro@school.jp", "", "2024-06-01")
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if d.TotalMinutes != 105 || len(d.Topics) != 2 {
		t.Fatalf("expected in-progress entry skipped, got %+v", d)
	}
	if d.Topics[0].Topic != "数II" || d.Topics[0].Minutes != 55 || d.Topics[0].Subject != "数学" {
		t.Fatalf("unexpected first topic %+v", d.Topics[0])
	}
}

func TestStatsAccess(t *testing.T) {
	s, _, _ := seededStats()
	ctx := context.Background()

	var forbidden *ForbiddenError
	if _, err := s.Daily(ctx, "hana@school.jp", "taro@school.jp", "2024-06-01"); !errors.As(err, &forbidden) {
		t.Fatalf("expected students kept out of other records, got %v", err)
	}
	d, err := s.Daily(ctx, "1@school.jp", "taro@school.jp", "2024-06-01")
	if err != nil || d.TotalMinutes != 105 {
		t.Fatalf("expected teacher access, got %+v %v", d, err)
	}
}

func TestTrend(t *testing.T) {
	s, _, _ := seededStats()
	ctx := context.Background()

	var validation *ValidationError
	if _, err := s.Trend(ctx, "taro@school.jp", "", 14); !errors.As(err, &validation) {
		t.Fatalf("expected only 7 or 30 days, got %v", err)
	}

	days, err := s.Trend(ctx, "taro@school.jp", "", 7)
	if err != nil {
		t.Fatalf("trend: %v", err)
	}
	if len(days) != 7 || days[0].Date != "2024-05-26" || days[6].Date != "2024-06-01" {
		t.Fatalf("unexpected range %+v", days)
	}
	if days[6].Minutes != 105 || days[4].Minutes != 40 || days[5].Minutes != 0 {
		t.Fatalf("unexpected totals %+v", days)
	}
}

func TestStacked(t *testing.T) {
	s, _, _ := seededStats()

	series, err := s.Stacked(context.Background(), "taro@school.jp", "", "2024-05-30", 3)
	if err != nil {
		t.Fatalf("stacked: %v", err)
	}
	if len(series.Days) != 3 || series.Days[2].Date != "2024-06-01" {
		t.Fatalf("unexpected days %+v", series.Days)
	}
	if series.Days[0].Topics["長文"] != 40 || series.Days[2].Topics["数II"] != 55 {
		t.Fatalf("unexpected topic minutes %+v", series.Days)
	}
	if _, ok := series.Days[2].Topics["数B"]; ok {
		t.Fatalf("in-progress topic must not appear")
	}
	if series.TopicSubject["長文"] != "英語" {
		t.Fatalf("unexpected topic subjects %+v", series.TopicSubject)
	}
}

func TestSummaryWindow(t *testing.T) {
	s, _, summaries := seededStats()
	ctx := context.Background()

	var notFound *NotFoundError
	if _, _, err := s.Summary(ctx, "decade"); !errors.As(err, &notFound) {
		t.Fatalf("expected unknown window rejected, got %v", err)
	}
	if _, _, err := s.Summary(ctx, models.WindowWeek); !errors.As(err, &notFound) {
		t.Fatalf("expected not generated yet, got %v", err)
	}
	summaries.Put(ctx, models.WindowWeek, models.WindowSummary{"taro@school.jp": {TotalMinutes: 145, Score: 60}})
	doc, _, err := s.Summary(ctx, models.WindowWeek)
	if err != nil || doc["taro@school.jp"].TotalMinutes != 145 {
		t.Fatalf("unexpected summary %+v %v", doc, err)
	}
}
