package hub

import (
	"encoding/json"
	"fmt"

	"github.com/loomworks/loom/internal/models"
)

// Inbound event types.
const (
	EventRegister = "register"
	EventMemory   = "memory"
	EventMessage  = "collaboration.message"
	EventTyping   = "collaboration.typing"
	EventPresence = "collaboration.presence"
	EventJoin     = "collaboration.join"
)

// Outbound-only event types.
const (
	EventJoined = "collaboration.joined"
	EventError  = "error"
)

// RegisterEvent associates the connection with an agent identity.
type RegisterEvent struct {
	AgentID int64 `json:"agentId"`
}

// MemoryEvent submits a memory for persistence and global broadcast.
type MemoryEvent struct {
	Memory models.Memory `json:"memory"`
}

// MessageEvent posts a message to a collaboration. The sender is the
// connection's registered agent, never a field of the payload.
type MessageEvent struct {
	CollaborationID int64          `json:"collaborationId"`
	Content         string         `json:"content"`
	ToAgentID       *int64         `json:"toAgentId,omitempty"`
	Priority        string         `json:"priority,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ParentID        *int64         `json:"parentId,omitempty"`
}

// TypingEvent signals a typing indicator change.
type TypingEvent struct {
	CollaborationID int64 `json:"collaborationId"`
	IsTyping        bool  `json:"isTyping"`
}

// PresenceEvent signals a presence status change.
type PresenceEvent struct {
	CollaborationID int64  `json:"collaborationId"`
	Status          string `json:"status"`
}

// JoinEvent adds the registered agent to a collaboration.
type JoinEvent struct {
	CollaborationID int64  `json:"collaborationId"`
	Role            string `json:"role,omitempty"`
}

// DecodeInbound parses a raw inbound payload into one of the event
// structs above. Required fields are checked here so handlers never see
// a half-formed event.
func DecodeInbound(raw []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.Type {
	case EventRegister:
		var ev RegisterEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.AgentID <= 0 {
			return nil, fmt.Errorf("register: agentId is required")
		}
		return &ev, nil

	case EventMemory:
		var ev MemoryEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Memory.Content == "" {
			return nil, fmt.Errorf("memory: content is required")
		}
		return &ev, nil

	case EventMessage:
		var ev MessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.CollaborationID <= 0 {
			return nil, fmt.Errorf("collaboration.message: collaborationId is required")
		}
		if ev.Content == "" {
			return nil, fmt.Errorf("collaboration.message: content is required")
		}
		return &ev, nil

	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.CollaborationID <= 0 {
			return nil, fmt.Errorf("collaboration.typing: collaborationId is required")
		}
		return &ev, nil

	case EventPresence:
		var ev PresenceEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.CollaborationID <= 0 {
			return nil, fmt.Errorf("collaboration.presence: collaborationId is required")
		}
		if ev.Status == "" {
			return nil, fmt.Errorf("collaboration.presence: status is required")
		}
		return &ev, nil

	case EventJoin:
		var ev JoinEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.CollaborationID <= 0 {
			return nil, fmt.Errorf("collaboration.join: collaborationId is required")
		}
		if ev.Role == "" {
			ev.Role = "contributor"
		}
		return &ev, nil

	case "":
		return nil, fmt.Errorf("missing event type")
	default:
		return nil, fmt.Errorf("unknown event type %q", probe.Type)
	}
}

// Outbound is the envelope for every event the hub emits.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TypingData is the payload of a collaboration.typing broadcast.
type TypingData struct {
	AgentID  int64 `json:"agentId"`
	IsTyping bool  `json:"isTyping"`
}

// PresenceData is the payload of a collaboration.presence broadcast.
type PresenceData struct {
	AgentID int64  `json:"agentId"`
	Status  string `json:"status"`
}

// JoinedData is the payload of a collaboration.joined broadcast.
type JoinedData struct {
	AgentID int64  `json:"agentId"`
	Role    string `json:"role"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}
