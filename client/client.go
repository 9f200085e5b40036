// Package client is a Go client for the Loom live channel. It speaks
// the same wire protocol as the dashboard: JSON envelopes with a type
// discriminant, request fields at the top level, responses under data.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one decoded outbound envelope from the server.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Memory mirrors the server's memory payload.
type Memory struct {
	AgentID    int64          `json:"agentId"`
	Type       string         `json:"type,omitempty"`
	Content    string         `json:"content"`
	Confidence float64        `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// MessageOptions carries the optional fields of a collaboration message.
type MessageOptions struct {
	ToAgentID *int64
	Priority  string
	Metadata  map[string]any
	ParentID  *int64
}

// Client is a live connection to the hub. Events arriving from the
// server are delivered on the Events channel until the connection
// closes, at which point the channel is closed.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// Dial connects to a Loom server. url is the full WebSocket endpoint,
// e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:   conn,
		events: make(chan Event, 32),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns the stream of server events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Register binds this connection to an agent identity. Must precede
// message, typing, presence and join calls.
func (c *Client) Register(agentID int64) error {
	return c.send(map[string]any{"type": "register", "agentId": agentID})
}

// SubmitMemory persists a memory; the server broadcasts it to every
// open connection.
func (c *Client) SubmitMemory(memory Memory) error {
	return c.send(map[string]any{"type": "memory", "memory": memory})
}

// SendMessage posts a message to a collaboration.
func (c *Client) SendMessage(collaborationID int64, content string, opts *MessageOptions) error {
	payload := map[string]any{
		"type":            "collaboration.message",
		"collaborationId": collaborationID,
		"content":         content,
	}
	if opts != nil {
		if opts.ToAgentID != nil {
			payload["toAgentId"] = *opts.ToAgentID
		}
		if opts.Priority != "" {
			payload["priority"] = opts.Priority
		}
		if opts.Metadata != nil {
			payload["metadata"] = opts.Metadata
		}
		if opts.ParentID != nil {
			payload["parentId"] = *opts.ParentID
		}
	}
	return c.send(payload)
}

// Typing signals a typing indicator change. Other participants receive
// it; this agent's own connections do not.
func (c *Client) Typing(collaborationID int64, isTyping bool) error {
	return c.send(map[string]any{
		"type":            "collaboration.typing",
		"collaborationId": collaborationID,
		"isTyping":        isTyping,
	})
}

// Presence announces a presence status to all participants.
func (c *Client) Presence(collaborationID int64, status string) error {
	return c.send(map[string]any{
		"type":            "collaboration.presence",
		"collaborationId": collaborationID,
		"status":          status,
	})
}

// Join adds this agent to a collaboration. Role defaults to
// "contributor" server-side when empty.
func (c *Client) Join(collaborationID int64, role string) error {
	payload := map[string]any{
		"type":            "collaboration.join",
		"collaborationId": collaborationID,
	}
	if role != "" {
		payload["role"] = role
	}
	return c.send(payload)
}

// Close performs the websocket close handshake and tears down the
// connection.
func (c *Client) Close() error {
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		// Give the server a moment to close cleanly
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
	})
	return c.conn.Close()
}

func (c *Client) send(payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		close(c.events)
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		c.events <- ev
	}
}
