package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/courierhq/courier/internal/models"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
// (agent name or API key already taken).
var ErrDuplicate = errors.New("store: duplicate row")

// DataStore defines the interface for persistent storage of agents, threads
// and messages. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	CreateAgent(ctx context.Context, name, bio, apiKey string) (*models.Agent, error)
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*models.Agent, error)
	GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error)
	CountAgents(ctx context.Context) (int64, error)

	// Thread operations. GetOrCreateThread must be atomic against concurrent
	// creation for the same pair: insert-if-absent, never check-then-act.
	GetOrCreateThread(ctx context.Context, agentLow, agentHigh uuid.UUID) (*models.Thread, bool, error)
	GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	TouchThread(ctx context.Context, id uuid.UUID, at time.Time) error
	ListThreadsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Thread, error)

	// Message operations. ListThreadMessages returns most-recent-first.
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListThreadMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, error)
	MarkThreadRead(ctx context.Context, threadID, recipientID uuid.UUID, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, threadID, recipientID uuid.UUID) (int, error)
}
