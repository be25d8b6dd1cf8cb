package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/courierhq/courier/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/courier.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/courier.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. Mirrors the PostgreSQL
// schema, including the reserved rate_limits table.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		bio TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		agent_low TEXT NOT NULL REFERENCES agents(id),
		agent_high TEXT NOT NULL REFERENCES agents(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_message_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (agent_low, agent_high),
		CHECK (agent_low <> agent_high)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL REFERENCES threads(id),
		sender_id TEXT NOT NULL REFERENCES agents(id),
		recipient_id TEXT NOT NULL REFERENCES agents(id),
		content TEXT NOT NULL CHECK (length(content) BETWEEN 1 AND 50000),
		created_at DATETIME NOT NULL,
		read_at DATETIME,
		CHECK (sender_id <> recipient_id)
	);

	-- Reserved for future quota enforcement; intentionally unused.
	CREATE TABLE IF NOT EXISTS rate_limits (
		agent_id TEXT PRIMARY KEY REFERENCES agents(id),
		window_start DATETIME NOT NULL,
		count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(thread_id, recipient_id) WHERE read_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_threads_agent_low ON threads(agent_low);
	CREATE INDEX IF NOT EXISTS idx_threads_agent_high ON threads(agent_high);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateAgent creates a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, name, bio, apiKey string) (*models.Agent, error) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, name, bio, api_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), name, bio, apiKey, now)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	return s.GetAgentByID(ctx, id)
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*models.Agent, error) {
	agent := &models.Agent{}
	var idStr string
	err := row.Scan(
		&idStr,
		&agent.Name,
		&agent.Bio,
		&agent.APIKey,
		&agent.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	agent.ID = uuid.MustParse(idStr)
	return agent, nil
}

// GetAgentByID retrieves an agent by ID.
func (s *SQLiteStore) GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE id = ?
	`, id.String()))
}

// GetAgentByName retrieves an agent by display name.
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE name = ?
	`, name))
}

// GetAgentByAPIKey retrieves an agent by credential token.
func (s *SQLiteStore) GetAgentByAPIKey(ctx context.Context, apiKey string) (*models.Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx, `
		SELECT id, name, bio, api_key, created_at
		FROM agents WHERE api_key = ?
	`, apiKey))
}

// CountAgents returns the total number of registered agents.
func (s *SQLiteStore) CountAgents(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count)
	return count, err
}

// GetOrCreateThread inserts the thread for the canonical pair if absent and
// returns the winning row either way. INSERT OR IGNORE plus a reread keeps
// concurrent first-contact sends converging on one row.
func (s *SQLiteStore) GetOrCreateThread(ctx context.Context, agentLow, agentHigh uuid.UUID) (*models.Thread, bool, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, agent_low, agent_high, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (agent_low, agent_high) DO NOTHING
	`, uuid.Must(uuid.NewV7()).String(), agentLow.String(), agentHigh.String(), now, now)
	if err != nil {
		return nil, false, err
	}

	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	thread := &models.Thread{}
	var idStr, lowStr, highStr string
	err = s.db.QueryRowContext(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads WHERE agent_low = ? AND agent_high = ?
	`, agentLow.String(), agentHigh.String()).Scan(
		&idStr,
		&lowStr,
		&highStr,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if err != nil {
		return nil, false, err
	}
	thread.ID = uuid.MustParse(idStr)
	thread.AgentLow = uuid.MustParse(lowStr)
	thread.AgentHigh = uuid.MustParse(highStr)
	return thread, created, nil
}

// GetThread retrieves a thread by ID. Returns nil without error when absent.
func (s *SQLiteStore) GetThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	thread := &models.Thread{}
	var idStr, lowStr, highStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&lowStr,
		&highStr,
		&thread.CreatedAt,
		&thread.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	thread.ID = uuid.MustParse(idStr)
	thread.AgentLow = uuid.MustParse(lowStr)
	thread.AgentHigh = uuid.MustParse(highStr)
	return thread, nil
}

// TouchThread raises last_message_at to at, never lowering it.
func (s *SQLiteStore) TouchThread(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE threads SET last_message_at = ?
		WHERE id = ? AND last_message_at < ?
	`, at, id.String(), at)
	return err
}

// ListThreadsForAgent retrieves all threads the agent is a member of, most
// recently active first.
func (s *SQLiteStore) ListThreadsForAgent(ctx context.Context, agentID uuid.UUID) ([]models.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent_low, agent_high, created_at, last_message_at
		FROM threads
		WHERE agent_low = ? OR agent_high = ?
		ORDER BY last_message_at DESC, id DESC
	`, agentID.String(), agentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var t models.Thread
		var idStr, lowStr, highStr string
		if err := rows.Scan(&idStr, &lowStr, &highStr, &t.CreatedAt, &t.LastMessageAt); err != nil {
			return nil, err
		}
		t.ID = uuid.MustParse(idStr)
		t.AgentLow = uuid.MustParse(lowStr)
		t.AgentHigh = uuid.MustParse(highStr)
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// InsertMessage appends a message row.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, thread_id, sender_id, recipient_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ThreadID.String(), msg.SenderID.String(), msg.RecipientID.String(), msg.Content, msg.CreatedAt)
	return err
}

// ListThreadMessages retrieves a page of messages, most recent first.
func (s *SQLiteStore) ListThreadMessages(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, sender_id, recipient_id, content, created_at, read_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, threadID.String(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var threadStr, senderStr, recipientStr string
		if err := rows.Scan(&m.ID, &threadStr, &senderStr, &recipientStr, &m.Content, &m.CreatedAt, &m.ReadAt); err != nil {
			return nil, err
		}
		m.ThreadID = uuid.MustParse(threadStr)
		m.SenderID = uuid.MustParse(senderStr)
		m.RecipientID = uuid.MustParse(recipientStr)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkThreadRead stamps every unread message addressed to the recipient in
// the thread. Idempotent: already-read rows are untouched.
func (s *SQLiteStore) MarkThreadRead(ctx context.Context, threadID, recipientID uuid.UUID, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE thread_id = ? AND recipient_id = ? AND read_at IS NULL
	`, at, threadID.String(), recipientID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UnreadCount counts messages in the thread addressed to the recipient that
// have no read timestamp.
func (s *SQLiteStore) UnreadCount(ctx context.Context, threadID, recipientID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE thread_id = ? AND recipient_id = ? AND read_at IS NULL
	`, threadID.String(), recipientID.String()).Scan(&count)
	return count, err
}
