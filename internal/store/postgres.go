package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courierhq/courier/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateAgent creates a new agent record.
func (s *PostgresStore) CreateAgent(ctx context.Context, name, bio, apiKey string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, bio, api_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, bio, api_key, created_at
	`, uuid.Must(uuid.NewV7()), name, bio, apiKey).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Bio,
		&agent.APIKey,
		&agent.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return agent, nil
}

// GetAgentByID retrieves an agent by ID.
func (s *PostgresStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE id = $1
	`, id))
}

// GetAgentByName retrieves an agent by display name.
func (s *PostgresStore) GetAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE name = $1
	`, name))
}

// GetAgentByAPIKey retrieves an agent by credential token.
func (s *PostgresStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE api_key = $1
	`, apiKey))
}

func (s *PostgresStore) scanAgent(row pgx.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Bio,
		&agent.APIKey,
		&agent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// CountAgents returns the total number of registered agents.
func (s *PostgresStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// GetOrCreateThread inserts the thread for the canonical pair if absent and
// returns the winning row either way. ON CONFLICT DO NOTHING plus a reread
// keeps concurrent first-contact sends converging on one row.
func (s *PostgresStore) GetOrCreateThread(ctx context.Context, agentLow, agentHigh uuid.UUID) (*models.Thread, bool, error) {
	thread := &models.Thread{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO threads (id, agent_low, agent_high)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_low, agent_high) DO NOTHING
		RETURNING id, agent_low, agent_high, created_at, last_message_at
	`, uuid.Must(uuid.NewV7()), agentLow, agentHigh).Scan(
		&thread.ID,
		&thread.AgentLow,
		&thread.AgentHigh,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if err == nil {
		return thread, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: another caller won the insert. Reread the existing row.
	err = s.pool.QueryRow(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads WHERE agent_low = $1 AND agent_high = $2
	`, agentLow, agentHigh).Scan(
		&thread.ID,
		&thread.AgentLow,
		&thread.AgentHigh,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if err != nil {
		return nil, false, err
	}
	return thread, false, nil
}

// GetThread retrieves a thread by ID. Returns nil without error when absent.
func (s *PostgresStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads WHERE id = $1
	`, id).Scan(
		&thread.ID,
		&thread.AgentLow,
		&thread.AgentHigh,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return thread, nil
}

// TouchThread raises last_message_at to at. The guard keeps recency from
// regressing when concurrent sends commit out of order.
func (s *PostgresStore) TouchThread(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE threads SET last_message_at = $2
		WHERE id = $1 AND last_message_at < $2
	`, id, at)
	return err
}

// ListThreadsForAgent retrieves all threads the agent is a member of, most
// recently active first.
func (s *PostgresStore) ListThreadsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Thread, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads
		WHERE agent_low = $1 OR agent_high = $1
		ORDER BY last_message_at DESC, id DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var t models.Thread
		if err := rows.Scan(&t.ID, &t.AgentLow, &t.AgentHigh, &t.CreatedAt, &t.LastMessageAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// InsertMessage appends a message row.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, thread_id, sender_id, recipient_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ThreadID, msg.SenderID, msg.RecipientID, msg.Content, msg.CreatedAt)
	return err
}

// ListThreadMessages retrieves a page of messages, most recent first. ULID
// ids order identically to creation order, so the id tie-break is stable.
func (s *PostgresStore) ListThreadMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, thread_id, sender_id, recipient_id, content, created_at, read_at
		FROM messages
		WHERE thread_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, threadID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkThreadRead stamps every unread message addressed to the recipient in
// the thread. Idempotent: already-read rows are untouched.
func (s *PostgresStore) MarkThreadRead(ctx context.Context, threadID, recipientID uuid.UUID, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET read_at = $3
		WHERE thread_id = $1 AND recipient_id = $2 AND read_at IS NULL
	`, threadID, recipientID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCount counts messages in the thread addressed to the recipient that
// have no read timestamp.
func (s *PostgresStore) UnreadCount(ctx context.Context, threadID, recipientID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE thread_id = $1 AND recipient_id = $2 AND read_at IS NULL
	`, threadID, recipientID).Scan(&count)
	return count, err
}
