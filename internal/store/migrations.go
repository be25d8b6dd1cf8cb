package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// pgSchema is the PostgreSQL schema. Pair uniqueness and content length are
// enforced here as the last line of defense behind the service-level checks.
// The rate_limits table is reserved: no current operation reads or writes it.
const pgSchema = `
CREATE TABLE IF NOT EXISTS agents (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	bio TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS threads (
	id UUID PRIMARY KEY,
	agent_low UUID NOT NULL REFERENCES agents(id),
	agent_high UUID NOT NULL REFERENCES agents(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (agent_low, agent_high),
	CHECK (agent_low <> agent_high)
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	thread_id UUID NOT NULL REFERENCES threads(id),
	sender_id UUID NOT NULL REFERENCES agents(id),
	recipient_id UUID NOT NULL REFERENCES agents(id),
	content TEXT NOT NULL CHECK (length(content) BETWEEN 1 AND 50000),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	read_at TIMESTAMPTZ,
	CHECK (sender_id <> recipient_id)
);

-- Reserved for future quota enforcement; intentionally unused.
CREATE TABLE IF NOT EXISTS rate_limits (
	agent_id UUID PRIMARY KEY REFERENCES agents(id),
	window_start TIMESTAMPTZ NOT NULL,
	count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_created ON messages(thread_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(thread_id, recipient_id) WHERE read_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_threads_agent_low ON threads(agent_low);
CREATE INDEX IF NOT EXISTS idx_threads_agent_high ON threads(agent_high);
`

// RunMigrations applies the schema to the PostgreSQL database at databaseURL.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, pgSchema)
	return err
}
