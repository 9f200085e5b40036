package models

import "time"

// Message represents a unit of communication between agents, optionally
// scoped to a collaboration and optionally threaded under a parent.
type Message struct {
	ID              int64          `json:"id"`
	FromAgentID     int64          `json:"fromAgentId"`
	ToAgentID       *int64         `json:"toAgentId,omitempty"`
	CollaborationID *int64         `json:"collaborationId,omitempty"`
	Type            string         `json:"type,omitempty"`
	Priority        string         `json:"priority,omitempty"`
	Status          string         `json:"status,omitempty"` // delivery status, default "sent"
	Content         string         `json:"content"`
	ParentID        *int64         `json:"parentId,omitempty"` // threading
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
