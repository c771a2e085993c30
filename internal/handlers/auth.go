package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"tsureben-backend/internal/logger"
	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
	"tsureben-backend/internal/schedule"
	"tsureben-backend/internal/services"
)

type authenticator interface {
	GoogleLogin(ctx context.Context, idToken string) (*models.AuthTokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.AuthTokens, error)
	Logout(ctx context.Context, refreshToken string) error
}

type AuthHandler struct {
	authService authenticator
}

func NewAuthHandler(authService authenticator) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Google exchanges a Google ID token for a session. needs_setup is set until
// the profile is filled in.
func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req models.GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	tokens, err := h.authService.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	tokens, err := h.authService.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.authService.Logout(r.Context(), req.RefreshToken); err != nil {
		logger.Warn("logout failed", "user", middleware.GetUserID(r.Context()), "err", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(middleware.RequestIDHeader)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: requestID(r),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	resp := errorResp(code, message, r)
	resp.Error.Fields = fields
	return resp
}

func manualEntryResp(reason string, r *http.Request) models.ErrorResponse {
	resp := errorResp("MANUAL_ENTRY_REQUIRED", "Enter the studied minutes to finish the session", r)
	resp.Error.Reason = reason
	return resp
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *services.ValidationError
		conflict     *services.ConflictError
		notFound     *services.NotFoundError
		unauthorized *services.UnauthorizedError
		forbidden    *services.ForbiddenError
		rateLimited  *services.RateLimitError
		confirm      *services.ConfirmationRequiredError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.Is(err, schedule.ErrInvalidTimeRange):
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_TIME_RANGE", "End time must be after start time", r))
	case errors.Is(err, pomodoro.ErrNoActivePlan):
		writeJSON(w, http.StatusConflict, errorResp("NO_ACTIVE_PLAN", "No plan covers the current time", r))
	case errors.Is(err, pomodoro.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResp("INVALID_STATE", err.Error(), r))
	case errors.Is(err, pomodoro.ErrInvalidDuration):
		writeJSON(w, http.StatusUnprocessableEntity, manualEntryResp("INVALID_DURATION", r))
	case errors.Is(err, pomodoro.ErrReauthRequired):
		writeJSON(w, http.StatusUnprocessableEntity, manualEntryResp("REAUTH_REQUIRED", r))
	case errors.As(err, &confirm):
		writeJSON(w, http.StatusPreconditionRequired, errorResp("CONFIRMATION_REQUIRED", confirm.Message, r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.Is(err, pgx.ErrNoRows):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Resource not found", r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &rateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimited.Message, r))
	default:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestID(r), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
