package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/courierhq/courier/internal/identity"
	"github.com/courierhq/courier/internal/messaging"
	"github.com/courierhq/courier/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	agents *identity.Service
	svc    *messaging.Service
	logger zerolog.Logger
}

// NewHandler creates a new Handler with the given services.
func NewHandler(db store.DataStore, agents *identity.Service, svc *messaging.Service, logger zerolog.Logger) *Handler {
	return &Handler{db: db, agents: agents, svc: svc, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
