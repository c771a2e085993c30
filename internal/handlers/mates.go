package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/presence"
)

type matesService interface {
	Overview(ctx context.Context, userID string) (presence.Connections, error)
	Search(ctx context.Context, userID, name string) ([]models.User, error)
	Request(ctx context.Context, userID string, emails ...string) error
	CancelRequest(ctx context.Context, userID, other string) error
	Accept(ctx context.Context, userID, other string) error
	Hide(ctx context.Context, userID, other string, confirm bool) error
	Unhide(ctx context.Context, userID, other string) error
}

type MatesHandler struct {
	mates matesService
}

func NewMatesHandler(mates matesService) *MatesHandler {
	return &MatesHandler{mates: mates}
}

func (h *MatesHandler) Overview(w http.ResponseWriter, r *http.Request) {
	conns, err := h.mates.Overview(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (h *MatesHandler) Search(w http.ResponseWriter, r *http.Request) {
	users, err := h.mates.Search(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *MatesHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails []string `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if err := h.mates.Request(r.Context(), middleware.GetUserID(r.Context()), req.Emails...); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Request sent"})
}

func (h *MatesHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.mates.CancelRequest(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "email")), "Request cancelled")
}

func (h *MatesHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.mates.Accept(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "email")), "Request accepted")
}

// Hide removes a mate or a pending request from view. Needs confirm=true.
func (h *MatesHandler) Hide(w http.ResponseWriter, r *http.Request) {
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	err := h.mates.Hide(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "email"), confirm)
	h.respond(w, r, err, "Hidden")
}

func (h *MatesHandler) Unhide(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.mates.Unhide(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "email")), "Restored")
}

func (h *MatesHandler) respond(w http.ResponseWriter, r *http.Request, err error, message string) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
