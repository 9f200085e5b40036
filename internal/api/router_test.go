package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/api"
	"github.com/loomworks/loom/internal/hub"
	"github.com/loomworks/loom/internal/models"
	"github.com/loomworks/loom/internal/store"
)

func newServer(t *testing.T, st store.DataStore) *httptest.Server {
	t.Helper()
	h := hub.New(st, zerolog.Nop())
	router := api.NewRouter(zerolog.Nop(), st, nil, h, []string{"*"})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestAgentEndpoints(t *testing.T) {
	st := store.NewMemStore()
	srv := newServer(t, st)

	resp := postJSON(t, srv.URL+"/api/agents", `{"name":"scout","type":"researcher"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody[models.Agent](t, resp)
	if created.ID == 0 || created.Name != "scout" || created.Status != "idle" {
		t.Fatalf("unexpected agent %+v", created)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/agents/%d", srv.URL, created.ID))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	fetched := decodeBody[models.Agent](t, resp)
	if fetched.ID != created.ID {
		t.Fatalf("expected agent %d, got %+v", created.ID, fetched)
	}

	resp, err = http.Get(srv.URL + "/api/agents/999")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/agents/banana")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	srv := newServer(t, store.NewMemStore())

	resp := postJSON(t, srv.URL+"/api/agents", `{"name":"   "}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/agents", `{not json`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", resp.StatusCode)
	}
}

func TestCreateAgentRejectsNonJSONContentType(t *testing.T) {
	srv := newServer(t, store.NewMemStore())

	resp, err := http.Post(srv.URL+"/api/agents", "text/plain", bytes.NewBufferString("scout"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestCollaborationEndpoints(t *testing.T) {
	st := store.NewMemStore()
	srv := newServer(t, st)
	ctx := context.Background()

	resp := postJSON(t, srv.URL+"/api/collaborations", `{"title":"protein folding","description":"round 2","metadata":{"team":"alpha"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	collab := decodeBody[models.Collaboration](t, resp)
	if collab.ID == 0 || collab.Status != "active" {
		t.Fatalf("unexpected collaboration %+v", collab)
	}

	resp = postJSON(t, srv.URL+"/api/collaborations", `{"description":"missing title"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without title, got %d", resp.StatusCode)
	}

	// Participants of an existing collaboration
	if _, err := st.AddParticipant(ctx, collab.ID, 7, "lead"); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(fmt.Sprintf("%s/api/collaborations/%d/participants", srv.URL, collab.ID))
	if err != nil {
		t.Fatal(err)
	}
	participants := decodeBody[[]models.Participant](t, resp)
	if len(participants) != 1 || participants[0].Role != "lead" {
		t.Fatalf("unexpected participants %+v", participants)
	}

	resp, err = http.Get(srv.URL + "/api/collaborations/999/participants")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing collaboration, got %d", resp.StatusCode)
	}
}

func TestCollaborationMessagesOrderedAscending(t *testing.T) {
	st := store.NewMemStore()
	srv := newServer(t, st)
	ctx := context.Background()

	collab, err := st.CreateCollaboration(ctx, "ordering", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, content := range []string{"first", "second", "third"} {
		msg := &models.Message{FromAgentID: 7, CollaborationID: &collab.ID, Content: content}
		if err := st.CreateMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/collaborations/%d/messages", srv.URL, collab.ID))
	if err != nil {
		t.Fatal(err)
	}
	messages := decodeBody[[]models.Message](t, resp)
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Content != want {
			t.Fatalf("message %d out of order: %+v", i, messages)
		}
	}
}

func TestMemoriesFilterByAgent(t *testing.T) {
	st := store.NewMemStore()
	srv := newServer(t, st)
	ctx := context.Background()

	for _, agentID := range []int64{7, 7, 8} {
		if err := st.CreateMemory(ctx, &models.Memory{AgentID: agentID, Content: "note"}); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := http.Get(srv.URL + "/api/memories?agentId=7")
	if err != nil {
		t.Fatal(err)
	}
	memories := decodeBody[[]models.Memory](t, resp)
	if len(memories) != 2 {
		t.Fatalf("expected 2 memories for agent 7, got %d", len(memories))
	}

	resp, err = http.Get(srv.URL + "/api/memories?agentId=banana")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad agentId, got %d", resp.StatusCode)
	}
}

// brokenStore forces read errors to exercise the 500 path.
type brokenStore struct {
	store.DataStore
}

func (s *brokenStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailureReturns500(t *testing.T) {
	srv := newServer(t, &brokenStore{DataStore: store.NewMemStore()})

	resp, err := http.Get(srv.URL + "/api/agents")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if body["error"] == "" {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newServer(t, store.NewMemStore())

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	health := decodeBody[map[string]any](t, resp)
	if health["status"] != "healthy" {
		t.Fatalf("unexpected health %v", health)
	}
}
