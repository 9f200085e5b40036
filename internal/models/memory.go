package models

import "time"

// Memory represents a unit of agent-produced content: findings, code
// fragments, notes. Broadcast to every live connection on creation,
// regardless of collaboration membership.
type Memory struct {
	ID         int64          `json:"id"`
	AgentID    int64          `json:"agentId"`
	Type       string         `json:"type,omitempty"` // "text", "code", ...
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
