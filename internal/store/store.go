package store

import (
	"context"

	"github.com/loomworks/loom/internal/models"
)

// DataStore defines the interface for persistent storage of agents,
// memories, messages and collaborations. PostgresStore, SQLiteStore and
// MemStore implement this interface.
//
// Lookup methods return (nil, nil) when the row does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Agent operations
	CreateAgent(ctx context.Context, name, agentType, status string) (*models.Agent, error)
	GetAgent(ctx context.Context, id int64) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)

	// Memory operations
	CreateMemory(ctx context.Context, memory *models.Memory) error
	ListMemories(ctx context.Context, agentID int64, limit int) ([]models.Memory, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, limit int) ([]models.Message, error)
	ListCollaborationMessages(ctx context.Context, collaborationID int64) ([]models.Message, error)

	// Collaboration operations
	CreateCollaboration(ctx context.Context, title, description string, metadata map[string]any) (*models.Collaboration, error)
	GetCollaboration(ctx context.Context, id int64) (*models.Collaboration, error)
	ListCollaborations(ctx context.Context) ([]models.Collaboration, error)
	TouchCollaboration(ctx context.Context, id int64) error

	// Participant operations
	AddParticipant(ctx context.Context, collaborationID, agentID int64, role string) (*models.Participant, error)
	ListParticipants(ctx context.Context, collaborationID int64) ([]models.Participant, error)
}
