package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/schedule"
)

type planService interface {
	Day(ctx context.Context, userID, date string) (models.DayPlans, error)
	Grid(ctx context.Context, userID, date string) ([]schedule.Slot, error)
	Create(ctx context.Context, userID, date string, req models.SavePlanRequest) (models.StudyPlanEntry, error)
	Update(ctx context.Context, userID, date string, ref models.EntryRef, req models.SavePlanRequest) (models.StudyPlanEntry, error)
	Delete(ctx context.Context, userID, date string, ref models.EntryRef, confirm bool) error
}

type PlanHandler struct {
	plans planService
}

func NewPlanHandler(plans planService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

func (h *PlanHandler) Day(w http.ResponseWriter, r *http.Request) {
	day, err := h.plans.Day(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// Grid returns the day as 24 hour slots for the calendar view.
func (h *PlanHandler) Grid(w http.ResponseWriter, r *http.Request) {
	slots, err := h.plans.Grid(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "date"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.SavePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	entry, err := h.plans.Create(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "date"), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	ref, ok := entryRef(w, r)
	if !ok {
		return
	}
	var req models.SavePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	entry, err := h.plans.Update(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "date"), ref, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Delete removes one entry. The caller must pass confirm=true.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, ok := entryRef(w, r)
	if !ok {
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	err := h.plans.Delete(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "date"), ref, confirm)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Plan entry deleted"})
}

func entryRef(w http.ResponseWriter, r *http.Request) (models.EntryRef, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid entry index", r))
		return models.EntryRef{}, false
	}
	return models.EntryRef{Hour: chi.URLParam(r, "hour"), Index: index}, true
}
