package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/models"
)

// MemStore is an in-memory DataStore. It backs development mode when no
// database is configured, and the test suites. Everything is lost on
// restart.
type MemStore struct {
	mu sync.RWMutex

	agents         map[int64]models.Agent
	memories       []models.Memory
	messages       []models.Message
	collaborations map[int64]models.Collaboration
	participants   []models.Participant

	nextAgentID         int64
	nextMemoryID        int64
	nextMessageID       int64
	nextCollaborationID int64
	nextParticipantID   int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		agents:         make(map[int64]models.Agent),
		collaborations: make(map[int64]models.Collaboration),
	}
}

// Close is a no-op.
func (s *MemStore) Close() {}

// Ping always succeeds.
func (s *MemStore) Ping(ctx context.Context) error { return nil }

// CreateAgent creates a new agent record.
func (s *MemStore) CreateAgent(ctx context.Context, name, agentType, status string) (*models.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextAgentID++
	now := time.Now().UTC()
	agent := models.Agent{
		ID:        s.nextAgentID,
		Name:      name,
		Type:      agentType,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.agents[agent.ID] = agent
	return &agent, nil
}

// GetAgent retrieves an agent by ID.
func (s *MemStore) GetAgent(ctx context.Context, id int64) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, nil
	}
	return &agent, nil
}

// ListAgents retrieves all agents, oldest first.
func (s *MemStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents, nil
}

// CreateMemory persists a memory record, filling ID and CreatedAt.
func (s *MemStore) CreateMemory(ctx context.Context, memory *models.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMemoryID++
	memory.ID = s.nextMemoryID
	memory.CreatedAt = time.Now().UTC()
	s.memories = append(s.memories, *memory)
	return nil
}

// ListMemories retrieves memories, newest first. agentID 0 means all agents.
func (s *MemStore) ListMemories(ctx context.Context, agentID int64, limit int) ([]models.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var memories []models.Memory
	for i := len(s.memories) - 1; i >= 0 && len(memories) < limit; i-- {
		m := s.memories[i]
		if agentID != 0 && m.AgentID != agentID {
			continue
		}
		memories = append(memories, m)
	}
	return memories, nil
}

// CreateMessage persists a message, filling ID and CreatedAt.
func (s *MemStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Status == "" {
		msg.Status = "sent"
	}
	s.nextMessageID++
	msg.ID = s.nextMessageID
	msg.CreatedAt = time.Now().UTC()
	s.messages = append(s.messages, *msg)
	return nil
}

// ListMessages retrieves messages, newest first.
func (s *MemStore) ListMessages(ctx context.Context, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(messages) < limit; i-- {
		messages = append(messages, s.messages[i])
	}
	return messages, nil
}

// ListCollaborationMessages retrieves a collaboration's messages ordered
// by timestamp ascending.
func (s *MemStore) ListCollaborationMessages(ctx context.Context, collaborationID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var messages []models.Message
	for _, m := range s.messages {
		if m.CollaborationID != nil && *m.CollaborationID == collaborationID {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

// CreateCollaboration creates a new collaboration with status "active".
func (s *MemStore) CreateCollaboration(ctx context.Context, title, description string, metadata map[string]any) (*models.Collaboration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCollaborationID++
	now := time.Now().UTC()
	collab := models.Collaboration{
		ID:          s.nextCollaborationID,
		Title:       title,
		Description: description,
		Status:      "active",
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.collaborations[collab.ID] = collab
	return &collab, nil
}

// GetCollaboration retrieves a collaboration by ID.
func (s *MemStore) GetCollaboration(ctx context.Context, id int64) (*models.Collaboration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collab, ok := s.collaborations[id]
	if !ok {
		return nil, nil
	}
	return &collab, nil
}

// ListCollaborations retrieves all collaborations, most recently active first.
func (s *MemStore) ListCollaborations(ctx context.Context) ([]models.Collaboration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	collabs := make([]models.Collaboration, 0, len(s.collaborations))
	for _, c := range s.collaborations {
		collabs = append(collabs, c)
	}
	sort.Slice(collabs, func(i, j int) bool { return collabs[i].UpdatedAt.After(collabs[j].UpdatedAt) })
	return collabs, nil
}

// TouchCollaboration updates the updated_at timestamp.
func (s *MemStore) TouchCollaboration(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collab, ok := s.collaborations[id]
	if !ok {
		return nil
	}
	collab.UpdatedAt = time.Now().UTC()
	s.collaborations[id] = collab
	return nil
}

// AddParticipant inserts a participant row. Joining a collaboration the
// agent already belongs to returns the existing row unchanged.
func (s *MemStore) AddParticipant(ctx context.Context, collaborationID, agentID int64, role string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		if p.CollaborationID == collaborationID && p.AgentID == agentID {
			existing := p
			return &existing, nil
		}
	}

	s.nextParticipantID++
	p := models.Participant{
		ID:              s.nextParticipantID,
		CollaborationID: collaborationID,
		AgentID:         agentID,
		Role:            role,
		JoinedAt:        time.Now().UTC(),
	}
	s.participants = append(s.participants, p)
	return &p, nil
}

// ListParticipants retrieves a collaboration's participant rows.
func (s *MemStore) ListParticipants(ctx context.Context, collaborationID int64) ([]models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var participants []models.Participant
	for _, p := range s.participants {
		if p.CollaborationID == collaborationID {
			participants = append(participants, p)
		}
	}
	return participants, nil
}
