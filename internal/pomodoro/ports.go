package pomodoro

import (
	"context"
	"time"

	"tsureben-backend/internal/models"
)

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateFinished State = "finished"
)

// Anchor is the persisted part of a session. It is enough to rebuild a Timer
// after a reload.
type Anchor struct {
	SessionID     string                `json:"session_id"`
	Date          string                `json:"date"`
	InitialStart  time.Time             `json:"initial_start"`
	Start         time.Time             `json:"start"`
	PausedElapsed time.Duration         `json:"paused_elapsed_ns"`
	State         State                 `json:"state"`
	Plan          models.StudyPlanEntry `json:"plan"`
}

// Store is the per-user persistence a Timer writes through.
type Store interface {
	AppendLog(ctx context.Context, date string, entry models.PomodoroLogEntry) error
	// UpdateLogs reads the day's entries fresh, applies fn and writes the result.
	// Nothing is written when fn returns an error.
	UpdateLogs(ctx context.Context, date string, fn func([]models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error)) error
	Announce(ctx context.Context, entry models.PomodoroLogEntry) error
	Withdraw(ctx context.Context) error
	SaveAnchor(ctx context.Context, a Anchor) error
	ClearAnchor(ctx context.Context) error
}

// Identity is the caller's authentication session at finish time.
type Identity interface {
	Valid(ctx context.Context) bool
	Reauthenticate(ctx context.Context) error
}

// ManualEntry supplies a minute count when the measured one cannot be used.
// cause is ErrReauthRequired or ErrInvalidDuration. Returning ErrEntryCancelled
// discards the session.
type ManualEntry interface {
	Minutes(ctx context.Context, cause error) (int, error)
}

type Snapshot struct {
	State          State                  `json:"state"`
	ElapsedSeconds int64                  `json:"elapsed_seconds"`
	SessionID      string                 `json:"session_id,omitempty"`
	Date           string                 `json:"date,omitempty"`
	StartTime      string                 `json:"start_time,omitempty"`
	Plan           *models.StudyPlanEntry `json:"plan,omitempty"`
}

type FinishResult struct {
	Date     string `json:"date"`
	Minutes  int    `json:"minutes"`
	Manual   bool   `json:"manual"`
	Appended bool   `json:"appended"`
}
