package store_test

import (
	"context"
	"testing"

	"github.com/loomworks/loom/internal/models"
	"github.com/loomworks/loom/internal/store"
)

func TestMemStoreAgentNotFound(t *testing.T) {
	st := store.NewMemStore()

	agent, err := st.GetAgent(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if agent != nil {
		t.Fatalf("expected nil for missing agent, got %+v", agent)
	}
}

func TestMemStoreParticipantUniqueness(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	collab, err := st.CreateCollaboration(ctx, "dedupe", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	first, err := st.AddParticipant(ctx, collab.ID, 7, "lead")
	if err != nil {
		t.Fatal(err)
	}
	second, err := st.AddParticipant(ctx, collab.ID, 7, "observer")
	if err != nil {
		t.Fatal(err)
	}

	// The second join is a no-op: same row, original role.
	if second.ID != first.ID || second.Role != "lead" {
		t.Fatalf("duplicate join created a new row: %+v vs %+v", first, second)
	}

	participants, err := st.ListParticipants(ctx, collab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected one participant row, got %d", len(participants))
	}
}

func TestMemStoreCollaborationMessagesAscending(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	collab, err := st.CreateCollaboration(ctx, "ordering", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, content := range []string{"a", "b", "c"} {
		msg := &models.Message{FromAgentID: 7, CollaborationID: &collab.ID, Content: content}
		if err := st.CreateMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == 0 {
			t.Fatal("message id not assigned")
		}
	}

	messages, err := st.ListCollaborationMessages(ctx, collab.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if messages[i].Content != want {
			t.Fatalf("messages out of order: %+v", messages)
		}
	}

	// Newest first on the global list
	recent, err := st.ListMessages(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Content != "c" {
		t.Fatalf("unexpected recent messages %+v", recent)
	}
}

func TestMemStoreMessageStatusDefault(t *testing.T) {
	st := store.NewMemStore()

	msg := &models.Message{FromAgentID: 7, Content: "hello"}
	if err := st.CreateMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if msg.Status != "sent" {
		t.Fatalf("expected default status sent, got %q", msg.Status)
	}
}
