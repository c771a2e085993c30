package services

import (
	"context"
	"testing"
	"time"

	"tsureben-backend/internal/models"
)

func TestComputeRollup(t *testing.T) {
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, jst)
	users := []models.User{
		{Email: "may@school.jp", Scores: []models.Score{{TestName: TestAprilCommon, Value: 50}, {TestName: TestMayWritten, Value: 62}}},
		{Email: "april@school.jp", Scores: []models.Score{{TestName: TestAprilCommon, Value: 48}}},
		{Email: "noscore@school.jp"},
		{Email: "idle@school.jp", Scores: []models.Score{{TestName: TestMayWritten, Value: 70}}},
	}
	logs := map[string]models.LogDocument{
		"may@school.jp": {
			"2024-06-14": {{Duration: minutes(30)}, {Duration: nil}},
			"2024-06-10": {{Duration: minutes(60)}},
			"2024-05-20": {{Duration: minutes(90)}},
			"2024-05-01": {{Duration: minutes(500)}},
		},
		"april@school.jp": {
			"2024-06-01": {{Duration: minutes(45)}},
		},
		"noscore@school.jp": {
			"2024-06-14": {{Duration: minutes(120)}},
		},
		"idle@school.jp": {
			"2024-06-14": {{Duration: nil}},
		},
	}

	got := ComputeRollup(users, logs, today)

	want := map[string]models.WindowSummary{
		models.WindowYesterday: {"may@school.jp": {TotalMinutes: 30, Score: 62}},
		models.WindowWeek:      {"may@school.jp": {TotalMinutes: 90, Score: 62}},
		models.WindowMonth: {
			"may@school.jp":   {TotalMinutes: 180, Score: 62},
			"april@school.jp": {TotalMinutes: 45, Score: 48},
		},
	}
	for window, expected := range want {
		doc := got[window]
		if len(doc) != len(expected) {
			t.Fatalf("%s: expected %d users, got %+v", window, len(expected), doc)
		}
		for email, point := range expected {
			if doc[email] != point {
				t.Fatalf("%s/%s: expected %+v, got %+v", window, email, point, doc[email])
			}
		}
	}
}

type memMarker struct {
	last string
}

func (m *memMarker) LastRun(context.Context) (string, error) { return m.last, nil }
func (m *memMarker) MarkRun(_ context.Context, date string) error {
	m.last = date
	return nil
}

func TestRollupSchedulerRunsOncePerDay(t *testing.T) {
	users := newFakeUsers(models.User{Email: "may@school.jp", Scores: []models.Score{{TestName: TestMayWritten, Value: 62}}})
	logs := newFakeLogs()
	logs.Append(context.Background(), "may@school.jp", "2024-06-14", models.PomodoroLogEntry{Duration: minutes(30)})
	summaries := &fakeSummaries{}
	marker := &memMarker{}

	sched := NewRollupScheduler(NewRollup(users, logs, summaries, jst), marker)
	now := time.Date(2024, 6, 14, 15, 30, 0, 0, time.UTC) // 00:30 JST on the 15th
	sched.now = func() time.Time { return now }

	if !sched.runIfDue(context.Background()) {
		t.Fatalf("expected first poll to run")
	}
	if marker.last != "2024-06-15" {
		t.Fatalf("expected marker in local date, got %q", marker.last)
	}
	if summaries.docs[models.WindowYesterday]["may@school.jp"].TotalMinutes != 30 {
		t.Fatalf("expected summaries written, got %+v", summaries.docs)
	}

	now = now.Add(time.Hour)
	if sched.runIfDue(context.Background()) {
		t.Fatalf("expected second poll on the same day to skip")
	}
	now = now.Add(24 * time.Hour)
	if !sched.runIfDue(context.Background()) {
		t.Fatalf("expected the next day to run")
	}
}
