package services

import (
	"context"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/presence"
)

// PresenceFeed serves the list of users studying right now as each viewer is
// allowed to see it.
type PresenceFeed struct {
	sessions SessionStore
	users    UserStore
	changes  ChangeSource
}

func NewPresenceFeed(sessions SessionStore, users UserStore, changes ChangeSource) *PresenceFeed {
	return &PresenceFeed{sessions: sessions, users: users, changes: changes}
}

// Viewer builds the viewer of userID. filterGrade and filterClass only apply
// to teachers.
func (f *PresenceFeed) Viewer(ctx context.Context, userID, filterGrade, filterClass string) (presence.Viewer, error) {
	user, err := f.users.GetByEmail(ctx, userID)
	if err != nil {
		return presence.Viewer{}, err
	}
	return presence.Viewer{
		Email:       user.Email,
		Grade:       user.Grade,
		Class:       user.Class,
		Teacher:     user.Teacher,
		FilterGrade: filterGrade,
		FilterClass: filterClass,
	}, nil
}

func (f *PresenceFeed) Snapshot(ctx context.Context) ([]models.ActiveSession, error) {
	return f.sessions.List(ctx)
}

func (f *PresenceFeed) Visible(ctx context.Context, v presence.Viewer) ([]models.ActiveSession, error) {
	all, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return presence.Filter(v, all), nil
}

// Subscribe sends the visible list now and again after every change. The
// channel is closed when ctx is done.
func (f *PresenceFeed) Subscribe(ctx context.Context, v presence.Viewer) <-chan []models.ActiveSession {
	out := make(chan []models.ActiveSession, 1)
	changes := f.changes.Changes(ctx)

	go func() {
		defer close(out)

		send := func() bool {
			list, err := f.Visible(ctx, v)
			if err != nil {
				logger.Warn("presence read failed", "viewer", v.Email, "err", err)
				return ctx.Err() == nil
			}
			select {
			case out <- list:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok || !send() {
					return
				}
			}
		}
	}()
	return out
}
