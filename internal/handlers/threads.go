package handlers

import (
	"net/http"

	"github.com/courierhq/courier/internal/api/middleware"
	"github.com/courierhq/courier/internal/models"
)

// InboxResponse represents the thread list response.
type InboxResponse struct {
	Threads []models.ThreadSummary `json:"threads"`
}

// ListThreads handles the inbox: all of the requester's threads with unread
// counts, most recently active first.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetAgentFromContext(r.Context())
	if requester == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	summaries, err := h.svc.Inbox(r.Context(), requester.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("inbox fetch failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch threads")
		return
	}

	if summaries == nil {
		summaries = []models.ThreadSummary{}
	}
	h.JSON(w, http.StatusOK, InboxResponse{Threads: summaries})
}
