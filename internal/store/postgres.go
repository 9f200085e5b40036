package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomworks/loom/internal/models"
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

// CreateAgent creates a new agent record.
func (s *PostgresStore) CreateAgent(ctx context.Context, name, agentType, status string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO agents (name, type, status)
		VALUES ($1, $2, $3)
		RETURNING id, name, type, status, created_at, updated_at
	`, name, agentType, status).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Type,
		&agent.Status,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// GetAgent retrieves an agent by ID.
func (s *PostgresStore) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	agent := &models.Agent{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, type, status, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Type,
		&agent.Status,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// ListAgents retrieves all agents, oldest first.
func (s *PostgresStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
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
		err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Type,
			&agent.Status,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// CreateMemory persists a memory record, filling ID and CreatedAt.
func (s *PostgresStore) CreateMemory(ctx context.Context, memory *models.Memory) error {
	meta, err := marshalMetadata(memory.Metadata)
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO memories (agent_id, type, content, confidence, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, memory.AgentID, memory.Type, memory.Content, memory.Confidence, meta).Scan(
		&memory.ID,
		&memory.CreatedAt,
	)
}

// ListMemories retrieves memories, newest first. agentID 0 means all agents.
func (s *PostgresStore) ListMemories(ctx context.Context, agentID int64, limit int) ([]models.Memory, error) {
	query := `
		SELECT id, agent_id, type, content, confidence, metadata, created_at
		FROM memories
	`
	args := []any{}
	if agentID != 0 {
		query += ` WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, agentID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var m models.Memory
		var meta []byte
		err := rows.Scan(&m.ID, &m.AgentID, &m.Type, &m.Content, &m.Confidence, &meta, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(meta, &m.Metadata); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// CreateMessage persists a message, filling ID and CreatedAt. Status
// defaults to "sent" when unset.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.Status == "" {
		msg.Status = "sent"
	}
	meta, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO messages (from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, msg.FromAgentID, msg.ToAgentID, msg.CollaborationID, msg.Type, msg.Priority,
		msg.Status, msg.Content, msg.ParentID, meta).Scan(
		&msg.ID,
		&msg.CreatedAt,
	)
}

// ListMessages retrieves messages, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata, created_at
		FROM messages ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ListCollaborationMessages retrieves a collaboration's messages ordered
// by timestamp ascending.
func (s *PostgresStore) ListCollaborationMessages(ctx context.Context, collaborationID int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_agent_id, to_agent_id, collaboration_id, type, priority, status, content, parent_id, metadata, created_at
		FROM messages WHERE collaboration_id = $1 ORDER BY created_at ASC
	`, collaborationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var meta []byte
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
		if err := unmarshalMetadata(meta, &m.Metadata); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// CreateCollaboration creates a new collaboration with status "active".
func (s *PostgresStore) CreateCollaboration(ctx context.Context, title, description string, metadata map[string]any) (*models.Collaboration, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	collab := &models.Collaboration{Metadata: metadata}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO collaborations (title, description, status, metadata)
		VALUES ($1, $2, 'active', $3)
		RETURNING id, title, description, status, created_at, updated_at
	`, title, description, meta).Scan(
		&collab.ID,
		&collab.Title,
		&collab.Description,
		&collab.Status,
		&collab.CreatedAt,
		&collab.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return collab, nil
}

// GetCollaboration retrieves a collaboration by ID.
func (s *PostgresStore) GetCollaboration(ctx context.Context, id int64) (*models.Collaboration, error) {
	collab := &models.Collaboration{}
	var meta []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, status, metadata, created_at, updated_at
		FROM collaborations WHERE id = $1
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := unmarshalMetadata(meta, &collab.Metadata); err != nil {
		return nil, err
	}
	return collab, nil
}

// ListCollaborations retrieves all collaborations, most recently active first.
func (s *PostgresStore) ListCollaborations(ctx context.Context) ([]models.Collaboration, error) {
	rows, err := s.pool.Query(ctx, `
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
		var meta []byte
		err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &meta, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(meta, &c.Metadata); err != nil {
			return nil, err
		}
		collabs = append(collabs, c)
	}
	return collabs, rows.Err()
}

// TouchCollaboration updates the updated_at timestamp.
func (s *PostgresStore) TouchCollaboration(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE collaborations SET updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// AddParticipant inserts a participant row. Joining a collaboration the
// agent already belongs to returns the existing row unchanged.
func (s *PostgresStore) AddParticipant(ctx context.Context, collaborationID, agentID int64, role string) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO collaboration_participants (collaboration_id, agent_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (collaboration_id, agent_id) DO UPDATE SET role = collaboration_participants.role
		RETURNING id, collaboration_id, agent_id, role, joined_at
	`, collaborationID, agentID, role).Scan(
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
func (s *PostgresStore) ListParticipants(ctx context.Context, collaborationID int64) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, collaboration_id, agent_id, role, joined_at
		FROM collaboration_participants WHERE collaboration_id = $1 ORDER BY joined_at
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

func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	return json.Marshal(metadata)
}

func unmarshalMetadata(raw []byte, dst *map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
