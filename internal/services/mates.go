package services

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"tsureben-backend/internal/models"
	"tsureben-backend/internal/presence"
	"tsureben-backend/internal/repository"
)

const mateSearchLimit = 10

// MatesService manages study-mate requests. A request is an entry in the
// sender's turebenRequests; two users are mates when each lists the other.
type MatesService struct {
	users UserStore
}

func NewMatesService(users UserStore) *MatesService {
	return &MatesService{users: users}
}

func (s *MatesService) Overview(ctx context.Context, userID string) (presence.Connections, error) {
	me, err := s.users.GetByEmail(ctx, userID)
	if err != nil {
		return presence.Connections{}, err
	}
	all, err := s.users.List(ctx)
	if err != nil {
		return presence.Connections{}, err
	}
	return presence.Classify(*me, all), nil
}

func (s *MatesService) Search(ctx context.Context, userID, name string) ([]models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return []models.User{}, nil
	}
	return s.users.SearchByName(ctx, name, userID, mateSearchLimit)
}

// Request sends requests to every email. Unknown users are rejected before
// anything is written.
func (s *MatesService) Request(ctx context.Context, userID string, emails ...string) error {
	targets := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" || e == userID || slices.Contains(targets, e) {
			continue
		}
		if _, err := s.users.GetByEmail(ctx, e); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &NotFoundError{Message: "User not found: " + e}
			}
			return err
		}
		targets = append(targets, e)
	}
	if len(targets) == 0 {
		return &ValidationError{Fields: map[string]string{"emails": "Select at least one other user"}}
	}
	return s.users.AddToList(ctx, userID, repository.ListTurebenRequests, targets...)
}

func (s *MatesService) CancelRequest(ctx context.Context, userID, other string) error {
	return s.users.RemoveFromList(ctx, userID, repository.ListTurebenRequests, other)
}

// Accept answers a received request by requesting back.
func (s *MatesService) Accept(ctx context.Context, userID, other string) error {
	me, err := s.users.GetByEmail(ctx, userID)
	if err != nil {
		return err
	}
	sender, err := s.users.GetByEmail(ctx, other)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "User not found"}
		}
		return err
	}
	if !presence.PendingReceived(*me, *sender) {
		return &ConflictError{Message: "No pending request from this user"}
	}
	return s.users.AddToList(ctx, userID, repository.ListTurebenRequests, other)
}

// Hide moves other into hiddenMates when mutual, else into hiddenRequests.
func (s *MatesService) Hide(ctx context.Context, userID, other string, confirm bool) error {
	if !confirm {
		return &ConfirmationRequiredError{Message: "Hiding a user must be confirmed"}
	}
	me, err := s.users.GetByEmail(ctx, userID)
	if err != nil {
		return err
	}
	target, err := s.users.GetByEmail(ctx, other)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "User not found"}
		}
		return err
	}
	column := repository.ListHiddenRequests
	if presence.IsMutual(*me, *target) {
		column = repository.ListHiddenMates
	}
	return s.users.AddToList(ctx, userID, column, other)
}

func (s *MatesService) Unhide(ctx context.Context, userID, other string) error {
	if err := s.users.RemoveFromList(ctx, userID, repository.ListHiddenRequests, other); err != nil {
		return err
	}
	return s.users.RemoveFromList(ctx, userID, repository.ListHiddenMates, other)
}
