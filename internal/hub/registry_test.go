package hub_test

import (
	"testing"

	"github.com/loomworks/loom/internal/hub"
)

func TestRegistryLifecycle(t *testing.T) {
	r := hub.NewRegistry()

	first := r.Add(&fakeConn{})
	second := r.Add(&fakeConn{})
	if first.ID() == second.ID() {
		t.Fatal("connection ids collide")
	}
	if r.Count() != 2 {
		t.Fatalf("expected 2 connections, got %d", r.Count())
	}

	if !r.Remove(first.ID()) {
		t.Fatal("remove of tracked connection failed")
	}
	if r.Remove(first.ID()) {
		t.Fatal("second remove reported success")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Count())
	}
}

func TestRegistryBind(t *testing.T) {
	r := hub.NewRegistry()
	client := r.Add(&fakeConn{})

	if client.AgentID() != 0 {
		t.Fatalf("new connection already bound: %d", client.AgentID())
	}

	if !r.Bind(client.ID(), 7) {
		t.Fatal("bind failed")
	}
	if client.AgentID() != 7 {
		t.Fatalf("expected agent 7, got %d", client.AgentID())
	}

	// Last write wins
	if !r.Bind(client.ID(), 8) {
		t.Fatal("rebind failed")
	}
	if client.AgentID() != 8 {
		t.Fatalf("expected agent 8, got %d", client.AgentID())
	}

	if r.Bind("no-such-id", 9) {
		t.Fatal("bind of unknown connection reported success")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := hub.NewRegistry()
	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		r.Add(c)
	}

	r.CloseAll()

	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
	for i, c := range conns {
		if !c.closed {
			t.Fatalf("connection %d not closed", i)
		}
	}
}
