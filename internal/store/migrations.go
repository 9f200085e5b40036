package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS agents (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'idle',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS memories (
	id BIGSERIAL PRIMARY KEY,
	agent_id BIGINT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS collaborations (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS collaboration_participants (
	id BIGSERIAL PRIMARY KEY,
	collaboration_id BIGINT NOT NULL REFERENCES collaborations(id),
	agent_id BIGINT NOT NULL,
	role TEXT NOT NULL DEFAULT 'contributor',
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (collaboration_id, agent_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	from_agent_id BIGINT NOT NULL,
	to_agent_id BIGINT,
	collaboration_id BIGINT,
	type TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'sent',
	content TEXT NOT NULL,
	parent_id BIGINT,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_collaboration ON messages(collaboration_id, created_at);
CREATE INDEX IF NOT EXISTS idx_participants_collaboration ON collaboration_participants(collaboration_id);
`

// RunMigrations applies the schema to the PostgreSQL database. All
// statements are idempotent, so repeated startups are safe.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, postgresSchema)
	return err
}
