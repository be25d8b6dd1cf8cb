package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/internal/metrics"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// RegisterResponse represents the registration response. The API key is
// returned here and nowhere else.
type RegisterResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
	Bio    string `json:"bio,omitempty"`
}

// ProfileResponse represents the public agent profile.
type ProfileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Register handles agent registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	agent, err := h.agents.Register(r.Context(), req.Name, req.Bio)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNameTaken):
			h.Error(w, http.StatusConflict, "name already taken")
		case errors.Is(err, identity.ErrInvalidName):
			h.Error(w, http.StatusBadRequest, "invalid name")
		case errors.Is(err, identity.ErrInvalidBio):
			h.Error(w, http.StatusBadRequest, "bio too long")
		default:
			h.logger.Error().Err(err).Msg("registration failed")
			h.Error(w, http.StatusInternalServerError, "failed to create agent")
		}
		return
	}

	metrics.AgentsRegistered.Inc()

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:     agent.ID.String(),
		Name:   agent.Name,
		APIKey: agent.APIKey,
		Bio:    agent.Bio,
	})
}

// GetAgent handles agent profile lookup by name.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	agent, err := h.agents.ResolveByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, identity.ErrAgentNotFound) {
			h.Error(w, http.StatusNotFound, "agent not found")
			return
		}
		h.logger.Error().Err(err).Msg("profile lookup failed")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, ProfileResponse{
		ID:        agent.ID.String(),
		Name:      agent.Name,
		Bio:       agent.Bio,
		CreatedAt: agent.CreatedAt.UTC().Format(time.RFC3339),
	})
}
