package handlers

import (
	"context"
	"net/http"

	"tsureben-backend/internal/middleware"
	"tsureben-backend/internal/models"
	"tsureben-backend/internal/presence"
)

type presenceFeed interface {
	Viewer(ctx context.Context, userID, filterGrade, filterClass string) (presence.Viewer, error)
	Visible(ctx context.Context, v presence.Viewer) ([]models.ActiveSession, error)
}

type PresenceHandler struct {
	feed presenceFeed
}

func NewPresenceHandler(feed presenceFeed) *PresenceHandler {
	return &PresenceHandler{feed: feed}
}

// List returns who is studying now as the caller may see it. Teachers can
// narrow the list with grade and class.
func (h *PresenceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	viewer, err := h.feed.Viewer(r.Context(), middleware.GetUserID(r.Context()), q.Get("grade"), q.Get("class"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	sessions, err := h.feed.Visible(r.Context(), viewer)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []models.ActiveSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}
