package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/pomodoro"
	"tsureben-backend/internal/services"
)

// RefreshTokenHeader lets /pomodoro/finish renew an expired access token.
const RefreshTokenHeader = "X-Refresh-Token"

type pomodoroService interface {
	Status(ctx context.Context, userID string) (*services.PomodoroStatus, error)
	Start(ctx context.Context, userID string) (pomodoro.Snapshot, error)
	Pause(ctx context.Context, userID string) (pomodoro.Snapshot, error)
	Resume(ctx context.Context, userID string) (pomodoro.Snapshot, error)
	Discard(ctx context.Context, userID string) (pomodoro.Snapshot, error)
	Finish(ctx context.Context, userID string, identity pomodoro.Identity, manual pomodoro.ManualEntry) (pomodoro.FinishResult, error)
}

// renewableIdentity is an identity that may hand out fresh tokens after
// re-authenticating.
type renewableIdentity interface {
	pomodoro.Identity
	RenewedTokens() *models.AuthTokens
}

type PomodoroHandler struct {
	timers   pomodoroService
	identity func(userID string, expired bool, refreshToken string) renewableIdentity
}

func NewPomodoroHandler(timers pomodoroService, auth *services.AuthService) *PomodoroHandler {
	return &PomodoroHandler{
		timers: timers,
		identity: func(userID string, expired bool, refreshToken string) renewableIdentity {
			return auth.Identity(userID, expired, refreshToken)
		},
	}
}

func (h *PomodoroHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.timers.Status(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *PomodoroHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.timers.Start)
}

func (h *PomodoroHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.timers.Pause)
}

func (h *PomodoroHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.timers.Resume)
}

func (h *PomodoroHandler) Discard(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.timers.Discard)
}

func (h *PomodoroHandler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (pomodoro.Snapshot, error)) {
	snap, err := fn(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Finish records the session. It is mounted behind AllowExpired: an expired
// access token is renewed with the X-Refresh-Token header, and when that
// fails the client is asked for manual_minutes instead.
func (h *PomodoroHandler) Finish(w http.ResponseWriter, r *http.Request) {
	var req models.FinishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ctx := r.Context()
	identity := h.identity(middleware.GetUserID(ctx), middleware.TokenExpired(ctx), r.Header.Get(RefreshTokenHeader))

	result, err := h.timers.Finish(ctx, middleware.GetUserID(ctx), identity, &manualMinutes{req: req})
	if errors.Is(err, pomodoro.ErrEntryCancelled) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"state":     pomodoro.StateIdle,
			"cancelled": true,
		})
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{"result": result}
	if tokens := identity.RenewedTokens(); tokens != nil {
		resp["tokens"] = tokens
	}
	writeJSON(w, http.StatusOK, resp)
}

// manualMinutes answers the timer's manual entry prompt from the request
// body. It answers once; a second prompt means the supplied value was
// rejected, so the cause goes back to the client.
type manualMinutes struct {
	req  models.FinishRequest
	used bool
}

func (m *manualMinutes) Minutes(_ context.Context, cause error) (int, error) {
	if m.req.Cancel {
		return 0, pomodoro.ErrEntryCancelled
	}
	if m.req.ManualMinutes == nil || m.used {
		return 0, cause
	}
	m.used = true
	return *m.req.ManualMinutes, nil
}
