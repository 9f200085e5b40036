// Package hub implements the collaboration broadcast hub: it tracks live
// connections, interprets inbound typed events, persists their side
// effects and fans resulting events out to the connections whose agents
// participate in the relevant collaboration.
package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/models"
	"github.com/loomworks/loom/internal/store"
)

// storeTimeout bounds every persistence call made while handling one
// inbound event. A hung store holds up only its own causal chain.
const storeTimeout = 5 * time.Second

// Hub mediates live connections and broadcast fan-out. All failures are
// local to the handling of one inbound event: the worst outcome is an
// error event on the originating connection.
type Hub struct {
	registry *Registry
	store    store.DataStore
	logger   zerolog.Logger
}

// New creates a hub over the given store.
func New(st store.DataStore, logger zerolog.Logger) *Hub {
	return &Hub{
		registry: NewRegistry(),
		store:    st,
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Registry exposes the connection registry to the transport layer.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Shutdown closes every live connection.
func (h *Hub) Shutdown() {
	h.registry.CloseAll()
}

// HandleInbound processes one raw payload from a connection. It never
// fails the connection: malformed input and store errors produce a
// single error event back to the originating connection only.
func (h *Hub) HandleInbound(ctx context.Context, c *Client, raw []byte) {
	ev, err := DecodeInbound(raw)
	if err != nil {
		h.sendError(c, err.Error(), "decode")
		return
	}

	switch ev := ev.(type) {
	case *RegisterEvent:
		metrics.HubEventsReceived.WithLabelValues(EventRegister).Inc()
		h.handleRegister(c, ev)
	case *MemoryEvent:
		metrics.HubEventsReceived.WithLabelValues(EventMemory).Inc()
		h.handleMemory(ctx, c, ev)
	case *MessageEvent:
		metrics.HubEventsReceived.WithLabelValues(EventMessage).Inc()
		h.handleMessage(ctx, c, ev)
	case *TypingEvent:
		metrics.HubEventsReceived.WithLabelValues(EventTyping).Inc()
		h.handleTyping(ctx, c, ev)
	case *PresenceEvent:
		metrics.HubEventsReceived.WithLabelValues(EventPresence).Inc()
		h.handlePresence(ctx, c, ev)
	case *JoinEvent:
		metrics.HubEventsReceived.WithLabelValues(EventJoin).Inc()
		h.handleJoin(ctx, c, ev)
	}
}

// handleRegister binds an agent identity to the connection. No
// persistence, no broadcast. The agent id is not validated against the
// store; REST-created agents are the source of truth and clients are
// expected to register ids they obtained there.
func (h *Hub) handleRegister(c *Client, ev *RegisterEvent) {
	h.registry.Bind(c.ID(), ev.AgentID)
	h.logger.Debug().
		Str("conn_id", c.ID()).
		Int64("agent_id", ev.AgentID).
		Msg("connection registered")
}

// handleMemory persists the memory and broadcasts it to every open
// connection, regardless of collaboration membership.
func (h *Hub) handleMemory(ctx context.Context, c *Client, ev *MemoryEvent) {
	memory := ev.Memory

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.CreateMemory(sctx, &memory)
	metrics.StoreLatency.WithLabelValues("create_memory").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Msg("memory persistence failed")
		h.sendError(c, "failed to store memory", "store")
		return
	}
	metrics.MemoriesStored.Inc()

	h.broadcastAll(EventMemory, memory)
}

// handleMessage persists a collaboration message and broadcasts it to
// the participant set, sender included. The sender identity comes from
// the connection binding, never from the payload.
func (h *Hub) handleMessage(ctx context.Context, c *Client, ev *MessageEvent) {
	agentID := c.AgentID()
	if agentID == 0 {
		h.sendError(c, "register before sending messages", "unregistered")
		return
	}

	collaborationID := ev.CollaborationID
	msg := models.Message{
		FromAgentID:     agentID,
		ToAgentID:       ev.ToAgentID,
		CollaborationID: &collaborationID,
		Priority:        ev.Priority,
		Content:         ev.Content,
		ParentID:        ev.ParentID,
		Metadata:        ev.Metadata,
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	start := time.Now()
	err := h.store.CreateMessage(sctx, &msg)
	metrics.StoreLatency.WithLabelValues("create_message").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Int64("collaboration_id", collaborationID).Msg("message persistence failed")
		h.sendError(c, "failed to store message", "store")
		return
	}
	metrics.MessagesPosted.Inc()

	if err := h.broadcastToCollaboration(sctx, collaborationID, EventMessage, msg, 0); err != nil {
		h.sendError(c, "failed to deliver message", "store")
	}
}

// handleTyping broadcasts a typing indicator to the participant set,
// excluding every connection bound to the originating agent.
func (h *Hub) handleTyping(ctx context.Context, c *Client, ev *TypingEvent) {
	agentID := c.AgentID()
	if agentID == 0 {
		h.sendError(c, "register before sending typing updates", "unregistered")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	data := TypingData{AgentID: agentID, IsTyping: ev.IsTyping}
	if err := h.broadcastToCollaboration(sctx, ev.CollaborationID, EventTyping, data, agentID); err != nil {
		h.sendError(c, "failed to deliver typing update", "store")
	}
}

// handlePresence broadcasts a presence change to the full participant
// set, sender included.
func (h *Hub) handlePresence(ctx context.Context, c *Client, ev *PresenceEvent) {
	agentID := c.AgentID()
	if agentID == 0 {
		h.sendError(c, "register before sending presence updates", "unregistered")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	data := PresenceData{AgentID: agentID, Status: ev.Status}
	if err := h.broadcastToCollaboration(sctx, ev.CollaborationID, EventPresence, data, 0); err != nil {
		h.sendError(c, "failed to deliver presence update", "store")
	}
}

// handleJoin inserts a participant row for the registered agent, then
// broadcasts collaboration.joined to the now-updated participant set.
// Joining a collaboration that does not exist surfaces an error event.
func (h *Hub) handleJoin(ctx context.Context, c *Client, ev *JoinEvent) {
	agentID := c.AgentID()
	if agentID == 0 {
		h.sendError(c, "register before joining collaborations", "unregistered")
		return
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	collab, err := h.store.GetCollaboration(sctx, ev.CollaborationID)
	if err != nil {
		h.logger.Error().Err(err).Int64("collaboration_id", ev.CollaborationID).Msg("collaboration lookup failed")
		h.sendError(c, "failed to look up collaboration", "store")
		return
	}
	if collab == nil {
		h.sendError(c, "collaboration not found", "not_found")
		return
	}

	participant, err := h.store.AddParticipant(sctx, ev.CollaborationID, agentID, ev.Role)
	if err != nil {
		h.logger.Error().Err(err).Int64("collaboration_id", ev.CollaborationID).Msg("participant insert failed")
		h.sendError(c, "failed to join collaboration", "store")
		return
	}

	h.logger.Info().
		Int64("agent_id", agentID).
		Int64("collaboration_id", ev.CollaborationID).
		Str("role", participant.Role).
		Msg("agent joined collaboration")

	data := JoinedData{AgentID: agentID, Role: participant.Role}
	if err := h.broadcastToCollaboration(sctx, ev.CollaborationID, EventJoined, data, 0); err != nil {
		h.sendError(c, "failed to announce join", "store")
	}
}

// broadcastAll delivers an event to every open connection. Send failures
// are isolated per connection.
func (h *Hub) broadcastAll(eventType string, data any) {
	payload, err := json.Marshal(Outbound{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("event marshal failed")
		return
	}

	for _, client := range h.registry.Snapshot() {
		h.deliver(client, eventType, payload)
	}
}

// broadcastToCollaboration delivers an event to the subset of live
// connections whose bound agent has a participant row for the
// collaboration at broadcast time. excludeAgent 0 means no exclusion.
// The participant set is re-read fresh on every call; connections that
// register or join mid-broadcast are not retroactively included. The
// collaboration's updated_at is touched even when nothing was reachable.
func (h *Hub) broadcastToCollaboration(ctx context.Context, collaborationID int64, eventType string, data any, excludeAgent int64) error {
	start := time.Now()
	participants, err := h.store.ListParticipants(ctx, collaborationID)
	metrics.StoreLatency.WithLabelValues("list_participants").Observe(time.Since(start).Seconds())
	if err != nil {
		h.logger.Error().Err(err).Int64("collaboration_id", collaborationID).Msg("participant lookup failed")
		return err
	}

	members := make(map[int64]struct{}, len(participants))
	for _, p := range participants {
		members[p.AgentID] = struct{}{}
	}

	payload, err := json.Marshal(Outbound{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("type", eventType).Msg("event marshal failed")
		return err
	}

	for _, client := range h.registry.Snapshot() {
		agentID := client.AgentID()
		if agentID == 0 {
			continue
		}
		if _, ok := members[agentID]; !ok {
			continue
		}
		if excludeAgent != 0 && agentID == excludeAgent {
			continue
		}
		h.deliver(client, eventType, payload)
	}

	if err := h.store.TouchCollaboration(ctx, collaborationID); err != nil {
		h.logger.Warn().Err(err).Int64("collaboration_id", collaborationID).Msg("collaboration touch failed")
	}
	return nil
}

// deliver sends one payload to one connection. A failed send never
// aborts the surrounding fan-out loop.
func (h *Hub) deliver(client *Client, eventType string, payload []byte) {
	if err := client.conn.Send(payload); err != nil {
		metrics.HubDeliveryFailures.Inc()
		h.logger.Warn().
			Err(err).
			Str("conn_id", client.ID()).
			Str("type", eventType).
			Msg("delivery failed, skipping connection")
		return
	}
	metrics.HubEventsDelivered.WithLabelValues(eventType).Inc()
}

// sendError reports a failure back to the originating connection only.
func (h *Hub) sendError(c *Client, message, reason string) {
	metrics.HubErrors.WithLabelValues(reason).Inc()

	payload, err := json.Marshal(Outbound{Type: EventError, Data: ErrorData{Message: message}})
	if err != nil {
		return
	}
	if err := c.conn.Send(payload); err != nil {
		h.logger.Warn().Err(err).Str("conn_id", c.ID()).Msg("error event delivery failed")
	}
}
