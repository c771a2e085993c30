package pomodoro

import (
	"errors"
	"testing"

	"tsureben-backend/internal/models"
)

func minutes(m int) *int { return &m }

func TestLocatePlaceholder(t *testing.T) {
	entries := []models.PomodoroLogEntry{
		{StartTime: "09:00", Duration: nil, Topic: "old"},
		{StartTime: "09:00", Duration: minutes(20)},
		{StartTime: "10:00", Duration: nil},
		{StartTime: "09:00", Duration: nil, Topic: "latest"},
		{StartTime: "11:00", Duration: minutes(5)},
	}

	tests := []struct {
		startTime string
		want      int
	}{
		{"09:00", 3},
		{"10:00", 2},
		{"11:00", -1},
		{"12:00", -1},
	}
	for _, tc := range tests {
		if got := LocatePlaceholder(entries, tc.startTime); got != tc.want {
			t.Errorf("LocatePlaceholder(%q) = %d, want %d", tc.startTime, got, tc.want)
		}
	}
}

func TestDetectOrphan(t *testing.T) {
	inProgress := []models.PomodoroLogEntry{
		{Date: "2024-06-01", StartTime: "09:00", Duration: minutes(30)},
		{Date: "2024-06-01", StartTime: "13:00"},
	}
	done := []models.PomodoroLogEntry{{Date: "2024-06-01", StartTime: "09:00", Duration: minutes(30)}}

	if err := DetectOrphan(nil, inProgress); !errors.Is(err, ErrOrphanedSession) {
		t.Fatalf("expected ErrOrphanedSession, got %v", err)
	}
	if err := DetectOrphan(&Anchor{State: StateRunning}, inProgress); err != nil {
		t.Fatalf("expected no orphan with an anchor, got %v", err)
	}
	if err := DetectOrphan(nil, done); err != nil {
		t.Fatalf("expected no orphan without in-progress entries, got %v", err)
	}
}

func TestValidateMinutes(t *testing.T) {
	for _, m := range []int{1, 25, 1000} {
		if err := ValidateMinutes(m); err != nil {
			t.Errorf("ValidateMinutes(%d) = %v", m, err)
		}
	}
	for _, m := range []int{-5, 0, 1001} {
		if err := ValidateMinutes(m); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("ValidateMinutes(%d) = %v, want ErrInvalidDuration", m, err)
		}
	}
}
