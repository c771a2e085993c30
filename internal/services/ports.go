package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
)

// Storage the services depend on. The repository package provides the
// Postgres implementations; redis.go provides the redis ones.

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	ListByGradeClass(ctx context.Context, grade, class string) ([]models.User, error)
	SearchByName(ctx context.Context, name, exclude string, limit int) ([]models.User, error)
	UpdateProfile(ctx context.Context, email string, p models.ProfileRequest) error
	AddToList(ctx context.Context, email, column string, values ...string) error
	RemoveFromList(ctx context.Context, email, column, value string) error
}

type PlanStore interface {
	GetDay(ctx context.Context, userID, date string) (models.DayPlans, error)
	All(ctx context.Context, userID string) (models.PlanDocument, error)
	UpdateDay(ctx context.Context, userID, date string, fn func(models.DayPlans) (models.DayPlans, error)) error
}

type LogStore interface {
	GetDay(ctx context.Context, userID, date string) ([]models.PomodoroLogEntry, error)
	All(ctx context.Context, userID string) (models.LogDocument, error)
	Append(ctx context.Context, userID, date string, entry models.PomodoroLogEntry) error
	UpdateDay(ctx context.Context, userID, date string, fn func([]models.PomodoroLogEntry) ([]models.PomodoroLogEntry, error)) error
}

type SessionStore interface {
	Put(ctx context.Context, userID string, a models.ActiveSession) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]models.ActiveSession, error)
}

type SummaryStore interface {
	Put(ctx context.Context, window string, doc models.WindowSummary) error
	Get(ctx context.Context, window string) (models.WindowSummary, time.Time, error)
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// AnchorStore keeps the running timer of each user. Load returns nil, nil when
// the user has no session.
type AnchorStore interface {
	Load(ctx context.Context, userID string) (*pomodoro.Anchor, error)
	Save(ctx context.Context, userID string, a pomodoro.Anchor) error
	Clear(ctx context.Context, userID string) error
}

type RefreshStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Take returns the owner of token and invalidates it.
	Take(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// ChangeSource signals that the set of active sessions changed. The channel is
// closed when ctx is done.
type ChangeSource interface {
	Changes(ctx context.Context) <-chan struct{}
}

type JobQueue interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

// Limiter admits or rejects one action for key.
type Limiter interface {
	Allow(key string) bool
}
