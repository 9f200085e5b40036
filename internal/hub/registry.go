package hub

import (
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Conn is one live bidirectional channel to a client. The websocket
// transport implements it; tests substitute fakes.
type Conn interface {
	// Send queues a serialized event for delivery. It must not block on
	// a slow peer; a send that cannot be queued returns an error.
	Send(payload []byte) error
	Close() error
}

// Client is a connection tracked by the registry, optionally bound to an
// agent identity after a register event.
type Client struct {
	id   string
	conn Conn

	// 0 while unregistered; last register wins.
	agentID atomic.Int64
}

// ID returns the opaque connection handle.
func (c *Client) ID() string { return c.id }

// AgentID returns the bound agent id, or 0 if the connection has not
// registered.
func (c *Client) AgentID() int64 { return c.agentID.Load() }

// Registry owns the set of live connections. It is hub-local, never
// persisted, and empty after a restart.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add tracks a new connection and returns its client handle.
func (r *Registry) Add(conn Conn) *Client {
	client := &Client{
		id:   ulid.Make().String(),
		conn: conn,
	}

	r.mu.Lock()
	r.clients[client.id] = client
	r.mu.Unlock()

	return client
}

// Remove drops a connection from the registry. Returns false if the id
// was not tracked.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Bind associates an agent identity with a connection. Idempotent; last
// write wins.
func (r *Registry) Bind(id string, agentID int64) bool {
	r.mu.RLock()
	client, ok := r.clients[id]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	client.agentID.Store(agentID)
	return true
}

// Snapshot returns the current set of live connections. The slice is a
// copy; membership changes after the call do not affect it.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every tracked connection and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
