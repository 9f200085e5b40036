package hub_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/hub"
	"github.com/loomworks/loom/internal/models"
	"github.com/loomworks/loom/internal/store"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// fakeConn records everything the hub sends to it.
type fakeConn struct {
	mu       sync.Mutex
	sent     []envelope
	closed   bool
	failSend bool
}

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("send failed")
	}
	var ev envelope
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	c.sent = append(c.sent, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events() []envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]envelope(nil), c.sent...)
}

func (c *fakeConn) eventTypes() []string {
	var types []string
	for _, ev := range c.events() {
		types = append(types, ev.Type)
	}
	return types
}

func newHub(t *testing.T) (*hub.Hub, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	return hub.New(st, zerolog.Nop()), st
}

// connect opens a fake connection, optionally bound to an agent.
// agentID 0 leaves it unregistered.
func connect(t *testing.T, h *hub.Hub, agentID int64) (*hub.Client, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	client := h.Registry().Add(fc)
	if agentID != 0 {
		if !h.Registry().Bind(client.ID(), agentID) {
			t.Fatal("bind failed")
		}
	}
	return client, fc
}

func newCollaboration(t *testing.T, st *store.MemStore) int64 {
	t.Helper()
	collab, err := st.CreateCollaboration(context.Background(), "patterns", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	return collab.ID
}

func addParticipant(t *testing.T, st *store.MemStore, collabID, agentID int64) {
	t.Helper()
	if _, err := st.AddParticipant(context.Background(), collabID, agentID, "contributor"); err != nil {
		t.Fatal(err)
	}
}

func send(h *hub.Hub, c *hub.Client, payload string) {
	h.HandleInbound(context.Background(), c, []byte(payload))
}

func TestMessageBroadcastScopedToParticipants(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)
	addParticipant(t, st, collabID, 8)

	sender, senderConn := connect(t, h, 7)
	_, memberConn := connect(t, h, 8)
	_, outsiderConn := connect(t, h, 9)

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"patterns found"}`, collabID))

	// Sender receives its own echo; exclusion is not applied on this path.
	for name, conn := range map[string]*fakeConn{"sender": senderConn, "member": memberConn} {
		events := conn.events()
		if len(events) != 1 || events[0].Type != "collaboration.message" {
			t.Fatalf("%s: expected one collaboration.message, got %v", name, conn.eventTypes())
		}
		var msg models.Message
		if err := json.Unmarshal(events[0].Data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Content != "patterns found" || msg.FromAgentID != 7 {
			t.Fatalf("%s: unexpected message %+v", name, msg)
		}
		if msg.ID == 0 {
			t.Fatalf("%s: broadcast carries unpersisted message", name)
		}
	}

	if len(outsiderConn.events()) != 0 {
		t.Fatalf("non-participant received %v", outsiderConn.eventTypes())
	}

	// The message must be durable before the broadcast.
	stored, err := st.ListCollaborationMessages(context.Background(), collabID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].Content != "patterns found" {
		t.Fatalf("expected one stored message, got %+v", stored)
	}
}

func TestTypingExcludesAllSenderConnections(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)
	addParticipant(t, st, collabID, 8)

	sender, firstConn := connect(t, h, 7)
	_, secondConn := connect(t, h, 7) // same agent, second connection
	_, otherConn := connect(t, h, 8)

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.typing","collaborationId":%d,"isTyping":true}`, collabID))

	if len(firstConn.events()) != 0 {
		t.Fatalf("originating connection received %v", firstConn.eventTypes())
	}
	if len(secondConn.events()) != 0 {
		t.Fatalf("sender's second connection received %v", secondConn.eventTypes())
	}

	events := otherConn.events()
	if len(events) != 1 || events[0].Type != "collaboration.typing" {
		t.Fatalf("expected one collaboration.typing, got %v", otherConn.eventTypes())
	}
	var data struct {
		AgentID  int64 `json:"agentId"`
		IsTyping bool  `json:"isTyping"`
	}
	if err := json.Unmarshal(events[0].Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.AgentID != 7 || !data.IsTyping {
		t.Fatalf("unexpected typing data %+v", data)
	}
}

func TestPresenceIncludesSender(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)
	addParticipant(t, st, collabID, 8)

	sender, senderConn := connect(t, h, 7)
	_, otherConn := connect(t, h, 8)

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.presence","collaborationId":%d,"status":"reviewing"}`, collabID))

	for name, conn := range map[string]*fakeConn{"sender": senderConn, "other": otherConn} {
		events := conn.events()
		if len(events) != 1 || events[0].Type != "collaboration.presence" {
			t.Fatalf("%s: expected one collaboration.presence, got %v", name, conn.eventTypes())
		}
	}
}

func TestMemoryBroadcastReachesEveryConnection(t *testing.T) {
	h, st := newHub(t)

	sender, senderConn := connect(t, h, 7)
	_, registeredConn := connect(t, h, 8)
	_, unregisteredConn := connect(t, h, 0)

	send(h, sender, `{"type":"memory","memory":{"agentId":7,"type":"text","content":"hypothesis confirmed","confidence":0.9}}`)

	for name, conn := range map[string]*fakeConn{
		"sender":       senderConn,
		"registered":   registeredConn,
		"unregistered": unregisteredConn,
	} {
		events := conn.events()
		if len(events) != 1 || events[0].Type != "memory" {
			t.Fatalf("%s: expected one memory event, got %v", name, conn.eventTypes())
		}
		var mem models.Memory
		if err := json.Unmarshal(events[0].Data, &mem); err != nil {
			t.Fatal(err)
		}
		if mem.ID == 0 || mem.Content != "hypothesis confirmed" {
			t.Fatalf("%s: unexpected memory %+v", name, mem)
		}
	}

	memories, err := st.ListMemories(context.Background(), 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected one stored memory, got %d", len(memories))
	}
}

func TestJoinThenMessageIsDelivered(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)

	sender, _ := connect(t, h, 7)
	joiner, joinerConn := connect(t, h, 8)

	send(h, joiner, fmt.Sprintf(`{"type":"collaboration.join","collaborationId":%d,"role":"reviewer"}`, collabID))

	events := joinerConn.events()
	if len(events) != 1 || events[0].Type != "collaboration.joined" {
		t.Fatalf("expected collaboration.joined, got %v", joinerConn.eventTypes())
	}
	var joined struct {
		AgentID int64  `json:"agentId"`
		Role    string `json:"role"`
	}
	if err := json.Unmarshal(events[0].Data, &joined); err != nil {
		t.Fatal(err)
	}
	if joined.AgentID != 8 || joined.Role != "reviewer" {
		t.Fatalf("unexpected joined data %+v", joined)
	}

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"welcome"}`, collabID))

	types := joinerConn.eventTypes()
	if len(types) != 2 || types[1] != "collaboration.message" {
		t.Fatalf("joiner did not receive subsequent message: %v", types)
	}
}

func TestJoinMissingCollaborationSurfacesError(t *testing.T) {
	h, st := newHub(t)

	joiner, joinerConn := connect(t, h, 8)
	send(h, joiner, `{"type":"collaboration.join","collaborationId":42}`)

	events := joinerConn.events()
	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("expected one error event, got %v", joinerConn.eventTypes())
	}

	participants, err := st.ListParticipants(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 0 {
		t.Fatalf("participant row created for missing collaboration: %+v", participants)
	}
}

func TestMalformedPayloadIsIsolated(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)
	addParticipant(t, st, collabID, 8)

	bad, badConn := connect(t, h, 7)
	other, otherConn := connect(t, h, 8)

	send(h, bad, `this is not json`)

	events := badConn.events()
	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("expected exactly one error event, got %v", badConn.eventTypes())
	}
	if badConn.closed {
		t.Fatal("connection was closed on malformed input")
	}

	// Traffic continues in both directions afterwards.
	send(h, other, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"still here"}`, collabID))

	types := badConn.eventTypes()
	if len(types) != 2 || types[1] != "collaboration.message" {
		t.Fatalf("connection did not receive broadcasts after bad payload: %v", types)
	}
	if got := otherConn.eventTypes(); len(got) != 1 || got[0] != "collaboration.message" {
		t.Fatalf("sender missed its own echo: %v", got)
	}
}

func TestNoCrossCollaborationLeakage(t *testing.T) {
	h, st := newHub(t)
	first := newCollaboration(t, st)
	second := newCollaboration(t, st)
	addParticipant(t, st, first, 7)
	addParticipant(t, st, second, 9)

	sender, _ := connect(t, h, 7)
	_, otherConn := connect(t, h, 9)

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"secret"}`, first))

	if len(otherConn.events()) != 0 {
		t.Fatalf("participant of another collaboration received %v", otherConn.eventTypes())
	}
}

func TestDeliveryFailureDoesNotAbortFanOut(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	for agentID := int64(7); agentID <= 9; agentID++ {
		addParticipant(t, st, collabID, agentID)
	}

	sender, _ := connect(t, h, 7)
	_, deadConn := connect(t, h, 8)
	deadConn.failSend = true
	_, liveConn := connect(t, h, 9)

	send(h, sender, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"carry on"}`, collabID))

	events := liveConn.events()
	if len(events) != 1 || events[0].Type != "collaboration.message" {
		t.Fatalf("healthy connection missed the broadcast: %v", liveConn.eventTypes())
	}
}

func TestMessageRequiresRegistration(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)

	anon, anonConn := connect(t, h, 0)
	send(h, anon, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"who am I"}`, collabID))

	events := anonConn.events()
	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("expected error for unregistered sender, got %v", anonConn.eventTypes())
	}

	stored, err := st.ListCollaborationMessages(context.Background(), collabID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 0 {
		t.Fatalf("message persisted for unregistered sender: %+v", stored)
	}
}

func TestRegisterLastWriteWins(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 8)

	c, conn := connect(t, h, 0)
	send(h, c, `{"type":"register","agentId":7}`)
	send(h, c, `{"type":"register","agentId":8}`)

	sender, _ := connect(t, h, 8)
	send(h, sender, fmt.Sprintf(`{"type":"collaboration.message","collaborationId":%d,"content":"rebound"}`, collabID))

	events := conn.events()
	if len(events) != 1 || events[0].Type != "collaboration.message" {
		t.Fatalf("rebinding did not take effect: %v", conn.eventTypes())
	}
}

func TestBroadcastTouchesCollaboration(t *testing.T) {
	h, st := newHub(t)
	collabID := newCollaboration(t, st)
	addParticipant(t, st, collabID, 7)

	before, err := st.GetCollaboration(context.Background(), collabID)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	// No participant connection is even open; the touch still happens.
	sender, _ := connect(t, h, 7)
	send(h, sender, fmt.Sprintf(`{"type":"collaboration.presence","collaborationId":%d,"status":"online"}`, collabID))

	after, err := st.GetCollaboration(context.Background(), collabID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Fatalf("updated_at not refreshed: before=%v after=%v", before.UpdatedAt, after.UpdatedAt)
	}
}

// failingStore wraps MemStore to force persistence errors.
type failingStore struct {
	*store.MemStore
	failMemories bool
}

func (s *failingStore) CreateMemory(ctx context.Context, memory *models.Memory) error {
	if s.failMemories {
		return errors.New("disk on fire")
	}
	return s.MemStore.CreateMemory(ctx, memory)
}

func TestPersistenceFailureReportedToOriginOnly(t *testing.T) {
	st := &failingStore{MemStore: store.NewMemStore(), failMemories: true}
	h := hub.New(st, zerolog.Nop())

	origin, originConn := connect(t, h, 7)
	_, otherConn := connect(t, h, 8)

	send(h, origin, `{"type":"memory","memory":{"agentId":7,"content":"lost"}}`)

	events := originConn.events()
	if len(events) != 1 || events[0].Type != "error" {
		t.Fatalf("expected one error event on origin, got %v", originConn.eventTypes())
	}
	if len(otherConn.events()) != 0 {
		t.Fatalf("broadcast happened despite persistence failure: %v", otherConn.eventTypes())
	}
}
