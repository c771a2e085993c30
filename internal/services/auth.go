package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"google.golang.org/api/idtoken"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/models"
)

const refreshTokenTTL = 7 * 24 * time.Hour

// Teacher accounts use a staff number as the mailbox name.
var teacherLocalPart = regexp.MustCompile(`^[0-9]{1,4}$`)

// IsTeacherEmail reports whether the local part of email is 1-4 digits.
func IsTeacherEmail(email string) bool {
	local, _, ok := strings.Cut(email, "@")
	return ok && teacherLocalPart.MatchString(local)
}

type TokenIssuer interface {
	GenerateAccessToken(email string, teacher bool) (string, error)
}

// IDTokenValidator verifies a Google ID token for audience.
type IDTokenValidator func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)

type AuthService struct {
	users          UserStore
	refresh        RefreshStore
	jwt            TokenIssuer
	googleClientID string
	validate       IDTokenValidator
}

func NewAuthService(users UserStore, refresh RefreshStore, jwt TokenIssuer, googleClientID string) *AuthService {
	return &AuthService{
		users:          users,
		refresh:        refresh,
		jwt:            jwt,
		googleClientID: googleClientID,
		validate:       idtoken.Validate,
	}
}

// GoogleLogin verifies a Google ID token and signs the user in, creating the
// base record on first sign-in.
func (s *AuthService) GoogleLogin(ctx context.Context, idToken string) (*models.AuthTokens, error) {
	if s.googleClientID == "" {
		return nil, &ValidationError{Fields: map[string]string{"google": "Google sign-in is not configured"}}
	}
	if idToken == "" {
		return nil, &ValidationError{Fields: map[string]string{"id_token": "ID token is required"}}
	}

	payload, err := s.validate(ctx, idToken, s.googleClientID)
	if err != nil {
		logger.Debug("google token rejected", "err", err)
		return nil, &UnauthorizedError{Message: "Invalid Google token"}
	}

	email, _ := payload.Claims["email"].(string)
	verified, _ := payload.Claims["email_verified"].(bool)
	name, _ := payload.Claims["name"].(string)
	if email == "" {
		return nil, &ValidationError{Fields: map[string]string{"google": "Google account missing email"}}
	}
	if !verified {
		return nil, &UnauthorizedError{Message: "Google account email is not verified"}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		user, err = s.createUser(ctx, email, name)
	}
	if err != nil {
		return nil, err
	}

	return s.issueTokens(ctx, user)
}

func (s *AuthService) createUser(ctx context.Context, email, name string) (*models.User, error) {
	user := &models.User{
		Email:      email,
		Name:       name,
		Teacher:    IsTeacherEmail(email),
		ShareScope: models.ScopeGrade,
	}
	err := s.users.Create(ctx, user)
	if errors.Is(err, pgx.ErrNoRows) {
		// created concurrently by another sign-in
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("user created", "user", email, "teacher", user.Teacher)
	return user, nil
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	return s.refreshFor(ctx, refreshToken, "")
}

// refreshFor rotates refreshToken. With a non-empty owner the token must
// belong to that user.
func (s *AuthService) refreshFor(ctx context.Context, refreshToken, owner string) (*models.AuthTokens, error) {
	if refreshToken == "" {
		return nil, &UnauthorizedError{Message: "Refresh token is required"}
	}
	userID, err := s.refresh.Take(ctx, refreshToken)
	if err != nil {
		return nil, &UnauthorizedError{Message: "Invalid or expired refresh token. Please log in again."}
	}
	if owner != "" && userID != owner {
		return nil, &UnauthorizedError{Message: "Refresh token does not belong to this session"}
	}

	user, err := s.users.GetByEmail(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Account no longer exists"}
		}
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.Delete(ctx, refreshToken)
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.AuthTokens, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.Email, user.Teacher)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := generateToken(64)
	if err != nil {
		return nil, err
	}

	if err := s.refresh.Save(ctx, refreshToken, user.Email, refreshTokenTTL); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &models.AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    900,
		NeedsSetup:   user.NeedsSetup(),
	}, nil
}

// SessionIdentity is the caller's authentication as seen when a session is
// finished. An expired access token is renewed with the refresh token.
type SessionIdentity struct {
	auth         *AuthService
	userID       string
	expired      bool
	refreshToken string

	renewed *models.AuthTokens
}

func (s *AuthService) Identity(userID string, expired bool, refreshToken string) *SessionIdentity {
	return &SessionIdentity{auth: s, userID: userID, expired: expired, refreshToken: refreshToken}
}

func (i *SessionIdentity) Valid(ctx context.Context) bool {
	return !i.expired
}

func (i *SessionIdentity) Reauthenticate(ctx context.Context) error {
	tokens, err := i.auth.refreshFor(ctx, i.refreshToken, i.userID)
	if err != nil {
		return err
	}
	i.renewed = tokens
	i.expired = false
	return nil
}

// RenewedTokens returns the tokens issued by Reauthenticate, or nil.
func (i *SessionIdentity) RenewedTokens() *models.AuthTokens {
	return i.renewed
}

func generateToken(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Custom errors
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// ConfirmationRequiredError is returned by destructive operations called
// without explicit confirmation.
type ConfirmationRequiredError struct{ Message string }

func (e *ConfirmationRequiredError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }
