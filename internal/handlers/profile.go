package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
)

type profileService interface {
	Me(ctx context.Context, userID string) (*models.User, error)
	Setup(ctx context.Context, userID string, req models.ProfileRequest) (*models.User, error)
	UpdateSettings(ctx context.Context, userID string, req models.ProfileRequest) (*models.User, error)
	PlanHistory(ctx context.Context, userID string) (models.PlanHistory, error)
	Students(ctx context.Context, userID, grade, class string) ([]models.User, error)
	EnqueueBulkRename(ctx context.Context, userID string, req models.BulkRenameRequest) (*models.Job, error)
	Job(ctx context.Context, userID string, id string) (*models.Job, error)
}

type ProfileHandler struct {
	profiles profileService
}

func NewProfileHandler(profiles profileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.profiles.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Setup stores grade, class and number after the first login.
func (h *ProfileHandler) Setup(w http.ResponseWriter, r *http.Request) {
	h.saveProfile(w, r, h.profiles.Setup)
}

func (h *ProfileHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	h.saveProfile(w, r, h.profiles.UpdateSettings)
}

func (h *ProfileHandler) saveProfile(w http.ResponseWriter, r *http.Request, save func(context.Context, string, models.ProfileRequest) (*models.User, error)) {
	var req models.ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	user, err := save(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *ProfileHandler) PlanHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.profiles.PlanHistory(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *ProfileHandler) Students(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	students, err := h.profiles.Students(r.Context(), middleware.GetUserID(r.Context()), q.Get("grade"), q.Get("class"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if students == nil {
		students = []models.User{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *ProfileHandler) BulkRename(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	job, err := h.profiles.EnqueueBulkRename(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func (h *ProfileHandler) Job(w http.ResponseWriter, r *http.Request) {
	job, err := h.profiles.Job(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
