package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent represents a registered agent identity.
type Agent struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio,omitempty"`
	APIKey    string    `json:"-"` // returned once at registration, never serialized after
	CreatedAt time.Time `json:"created_at"`
}
