package models

import "time"

// Collaboration represents a named unit of multi-agent work. It is the
// scoping unit for message/typing/presence/join broadcasts.
type Collaboration struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"` // free-form: "active", "in_progress", "pending"
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Participant links an agent to a collaboration with a role. An agent
// receives broadcasts for a collaboration iff at least one participant
// row exists for it.
type Participant struct {
	ID              int64     `json:"id"`
	CollaborationID int64     `json:"collaborationId"`
	AgentID         int64     `json:"agentId"`
	Role            string    `json:"role"` // "lead", "contributor", "reviewer", "observer"
	JoinedAt        time.Time `json:"joined_at"`
}
