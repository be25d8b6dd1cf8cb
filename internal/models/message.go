package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one immutable content unit within a thread. The only permitted
// mutation after creation is the one-way ReadAt transition from nil to a
// timestamp. IDs are ULIDs, so id order matches creation order and breaks
// ties at identical timestamps deterministically.
type Message struct {
	ID          string     `json:"id"` // ULID
	ThreadID    uuid.UUID  `json:"thread_id"`
	SenderID    uuid.UUID  `json:"sender_id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}
