package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/courierhq/courier/internal/api/middleware"
	"github.com/courierhq/courier/internal/messaging"
)

// SendMessageRequest represents the send request body.
type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// SendMessage handles sending a direct message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetAgentFromContext(r.Context())
	if sender == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid recipient_id format")
		return
	}

	msg, err := h.svc.Send(r.Context(), sender.ID, recipientID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrRecipientNotFound):
			h.Error(w, http.StatusNotFound, "recipient not found")
		case errors.Is(err, messaging.ErrSelfMessage):
			h.Error(w, http.StatusBadRequest, "cannot message yourself")
		case errors.Is(err, messaging.ErrInvalidContent):
			h.Error(w, http.StatusBadRequest, "content must be 1 to 50000 bytes")
		default:
			h.logger.Error().Err(err).Msg("send failed")
			h.Error(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetThreadHistory handles paginated thread history for a member.
func (h *Handler) GetThreadHistory(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetAgentFromContext(r.Context())
	if requester == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	threadID, err := uuid.Parse(chi.URLParam(r, "thread_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid thread ID format")
		return
	}

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	page, err := h.svc.History(r.Context(), requester.ID, threadID, limit, offset)
	if err != nil {
		if errors.Is(err, messaging.ErrForbidden) {
			// Same response whether the thread is missing or simply not
			// the requester's.
			h.Error(w, http.StatusForbidden, "not a member of this thread")
			return
		}
		h.logger.Error().Err(err).Msg("history fetch failed")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, page)
}

// queryInt parses an integer query parameter, falling back on def.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
