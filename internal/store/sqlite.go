package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loomworks/loom/internal/models"
)

// SQLiteStore handles SQLite database operations. It serves single-node
// deploys where running PostgreSQL is not worth it.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/loom.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/loom.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
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

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'idle',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collaborations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collaboration_participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collaboration_id INTEGER NOT NULL REFERENCES collaborations(id),
		agent_id INTEGER NOT NULL,
		role TEXT NOT NULL DEFAULT 'contributor',
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (collaboration_id, agent_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_agent_id INTEGER NOT NULL,
		to_agent_id INTEGER,
		collaboration_id INTEGER,
		type TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'sent',
		content TEXT NOT NULL,
		parent_id INTEGER,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_collaboration ON messages(collaboration_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_participants_collaboration ON collaboration_participants(collaboration_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAgent creates a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, name, agentType, status string) (*models.Agent, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (name, type, status) VALUES (?, ?, ?)
	`, name, agentType, status)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetAgent(ctx, id)
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, status, created_at, updated_at
		FROM agents WHERE id = ?
	`, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Type,
		&agent.Status,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// ListAgents retrieves all agents, oldest first.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, status, created_at, updated_at
		FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var agent models.Agent
		err := rows.Scan(&agent.ID, &agent.Name, &agent.Type, &agent.Status, &agent.CreatedAt, &agent.UpdatedAt)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// CreateMemory persists a memory record, filling ID and CreatedAt.
func (s *SQLiteStore) CreateMemory(ctx context.Context, memory *models.Memory) error {
	meta, err := marshalMetadata(memory.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (agent_id, type, content, confidence, metadata)
		VALUES (?, ?, ?, ?, ?)
	`, memory.AgentID, memory.Type, memory.Content, memory.Confidence, nullableText(meta))
	if err != nil {
		return err
	}
	memory.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	memory.CreatedAt = time.Now().UTC()
	return nil
}

// ListMemories retrieves memories, newest first. agentID 0 means all agents.
func (s *SQLiteStore) ListMemories(ctx context.Context, agentID int64, limit int) ([]models.Memory, error) {
	query := `
		SELECT id, agent_id, type, content, confidence, metadata, created_at
		FROM memories
	`
	args := []any{}
	if agentID != 0 {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		var meta sql.NullString
		err := rows.Scan(&m.ID, &m.AgentID, &m.Type, &m.Content, &m.Confidence, &meta, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := unmarshalMetadata([]byte(meta.String), &m.Metadata); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// CreateMessage persists a message, filling ID and CreatedAt.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.Status == "" {
		msg.Status = "sent"
	}
	meta, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.FromAgentID, msg.ToAgentID, msg.CollaborationID, msg.Type, msg.Priority,
		msg.Status, msg.Content, msg.ParentID, nullableText(meta))
	if err != nil {
		return err
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	msg.CreatedAt = time.Now().UTC()
	return nil
}

// ListMessages retrieves messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata, created_at
		FROM messages ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteMessages(rows)
}

// ListCollaborationMessages retrieves a collaboration's messages ordered
// by timestamp ascending.
func (s *SQLiteStore) ListCollaborationMessages(ctx context.Context, collaborationID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata, created_at
		FROM messages WHERE collaboration_id = ? ORDER BY created_at ASC, id ASC
	`, collaborationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteMessages(rows)
}

func scanSQLiteMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var meta sql.NullString
		err := rows.Scan(
			&m.ID,
			&m.FromAgentID,
			&m.ToAgentID,
			&m.CollaborationID,
			&m.Type,
			&m.Priority,
			&m.Status,
			&m.Content,
			&m.ParentID,
			&meta,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := unmarshalMetadata([]byte(meta.String), &m.Metadata); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateCollaboration creates a new collaboration with status "active".
func (s *SQLiteStore) CreateCollaboration(ctx context.Context, title, description string, metadata map[string]any) (*models.Collaboration, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO collaborations (title, description, status, metadata)
		VALUES (?, ?, 'active', ?)
	`, title, description, nullableText(meta))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetCollaboration(ctx, id)
}

// GetCollaboration retrieves a collaboration by ID.
func (s *SQLiteStore) GetCollaboration(ctx context.Context, id int64) (*models.Collaboration, error) {
	collab := &models.Collaboration{}
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, status, metadata, created_at, updated_at
		FROM collaborations WHERE id = ?
	`, id).Scan(
		&collab.ID,
		&collab.Title,
		&collab.Description,
		&collab.Status,
		&meta,
		&collab.CreatedAt,
		&collab.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalMetadata([]byte(meta.String), &collab.Metadata); err != nil {
		return nil, err
	}
	return collab, nil
}

// ListCollaborations retrieves all collaborations, most recently active first.
func (s *SQLiteStore) ListCollaborations(ctx context.Context) ([]models.Collaboration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, status, metadata, created_at, updated_at
		FROM collaborations ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collabs []models.Collaboration
	for rows.Next() {
		var c models.Collaboration
		var meta sql.NullString
		err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &meta, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if err := unmarshalMetadata([]byte(meta.String), &c.Metadata); err != nil {
			return nil, err
		}
		collabs = append(collabs, c)
	}
	return collabs, rows.Err()
}

// TouchCollaboration updates the updated_at timestamp.
func (s *SQLiteStore) TouchCollaboration(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE collaborations SET updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	return err
}

// AddParticipant inserts a participant row. Joining a collaboration the
// agent already belongs to returns the existing row unchanged.
func (s *SQLiteStore) AddParticipant(ctx context.Context, collaborationID, agentID int64, role string) (*models.Participant, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collaboration_participants (collaboration_id, agent_id, role)
		VALUES (?, ?, ?)
		ON CONFLICT (collaboration_id, agent_id) DO NOTHING
	`, collaborationID, agentID, role)
	if err != nil {
		return nil, err
	}

	p := &models.Participant{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, collaboration_id, agent_id, role, joined_at
		FROM collaboration_participants WHERE collaboration_id = ? AND agent_id = ?
	`, collaborationID, agentID).Scan(
		&p.ID,
		&p.CollaborationID,
		&p.AgentID,
		&p.Role,
		&p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListParticipants retrieves a collaboration's participant rows.
func (s *SQLiteStore) ListParticipants(ctx context.Context, collaborationID int64) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collaboration_id, agent_id, role, joined_at
		FROM collaboration_participants WHERE collaboration_id = ? ORDER BY joined_at
	`, collaborationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		err := rows.Scan(&p.ID, &p.CollaborationID, &p.AgentID, &p.Role, &p.JoinedAt)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
