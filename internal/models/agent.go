package models

import "time"

// Agent represents a registered research agent.
type Agent struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type,omitempty"`   // e.g. "researcher", "analyst"
	Status    string    `json:"status,omitempty"` // e.g. "idle", "working"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
