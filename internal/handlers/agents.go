package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

// CreateAgentRequest represents the agent creation request.
type CreateAgentRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
}

// ListAgents handles fetching all agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.ListAgents(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, agents)
}

// GetAgent handles fetching a single agent.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid agent ID")
		return
	}

	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}
	h.JSON(w, http.StatusOK, agent)
}

// CreateAgent handles agent creation.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Status == "" {
		req.Status = "idle"
	}

	agent, err := h.store.CreateAgent(r.Context(), req.Name, req.Type, req.Status)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}
	h.JSON(w, http.StatusCreated, agent)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
