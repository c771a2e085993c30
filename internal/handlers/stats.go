package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
)

type statsService interface {
	Daily(ctx context.Context, viewerID, studentID, date string) (*models.DailyBreakdown, error)
	Trend(ctx context.Context, viewerID, studentID string, days int) ([]models.DayTotal, error)
	Stacked(ctx context.Context, viewerID, studentID, from string, days int) (*models.StackedSeries, error)
	Summary(ctx context.Context, window string) (models.WindowSummary, time.Time, error)
}

// StatsHandler serves study time aggregates. Teachers pass student=<email>
// to look at a student's records.
type StatsHandler struct {
	stats statsService
}

func NewStatsHandler(stats statsService) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	daily, err := h.stats.Daily(r.Context(), middleware.GetUserID(r.Context()), q.Get("student"), q.Get("date"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (h *StatsHandler) Trend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, ok := intParam(w, r, "days", 7)
	if !ok {
		return
	}
	trend, err := h.stats.Trend(r.Context(), middleware.GetUserID(r.Context()), q.Get("student"), days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (h *StatsHandler) Stacked(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, ok := intParam(w, r, "days", 7)
	if !ok {
		return
	}
	series, err := h.stats.Stacked(r.Context(), middleware.GetUserID(r.Context()), q.Get("student"), q.Get("from"), days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// Summary returns the nightly per-user totals for one window.
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	window := chi.URLParam(r, "window")
	doc, generated, err := h.stats.Summary(r.Context(), window)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":       window,
		"generated_at": generated,
		"users":        doc,
	})
}

func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{name: "Must be a number"}, r))
		return 0, false
	}
	return v, true
}
