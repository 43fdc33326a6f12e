package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RegisterAgentRoutes registers agent catalog routes. Reads are open
// to any session; writes require the admin role.
func (h *Handler) RegisterAgentRoutes(r chi.Router) {
	r.Route("/api/agents", func(r chi.Router) {
		r.Get("/", h.ListAgents)
		r.Get("/{agentID}", h.GetAgent)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/", h.CreateAgent)
			r.Put("/{agentID}", h.UpdateAgent)
			r.Delete("/{agentID}", h.DeleteAgent)
		})
	})
}

type agentPayload struct {
	Name               string `json:"name"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	SystemInstructions string `json:"system_instructions"`
	AvatarURL          string `json:"avatar_url"`
}

func (p *agentPayload) validate() string {
	if strings.TrimSpace(p.Name) == "" {
		return "name cannot be empty"
	}
	if strings.TrimSpace(p.SystemInstructions) == "" {
		return "system_instructions cannot be empty"
	}
	return ""
}

// ListAgents returns all configured agents.
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgents(r.Context())
	if err != nil {
		slog.Error("Failed to list agents", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// GetAgent returns one agent by ID.
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	agent, err := h.repo.GetAgent(r.Context(), agentID)
	if err != nil {
		slog.Error("Failed to get agent", "error", err, "agent_id", agentID)
		Error(w, http.StatusInternalServerError, "failed to get agent")
		return
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}
	JSON(w, http.StatusOK, agent)
}

// CreateAgent creates a new agent persona.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var payload agentPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if msg := payload.validate(); msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	agent := &domain.Agent{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(payload.Name),
		Title:              strings.TrimSpace(payload.Title),
		Description:        strings.TrimSpace(payload.Description),
		SystemInstructions: payload.SystemInstructions,
		AvatarURL:          strings.TrimSpace(payload.AvatarURL),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		slog.Error("Failed to create agent", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	slog.Info("Agent created", "agent_id", agent.ID, "name", agent.Name)
	JSON(w, http.StatusCreated, agent)
}

// UpdateAgent updates an existing agent persona.
func (h *Handler) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var payload agentPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if msg := payload.validate(); msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}

	agent, err := h.repo.GetAgent(r.Context(), agentID)
	if err != nil {
		slog.Error("Failed to load agent", "error", err, "agent_id", agentID)
		Error(w, http.StatusInternalServerError, "failed to update agent")
		return
	}
	if agent == nil {
		Error(w, http.StatusNotFound, "agent not found")
		return
	}

	agent.Name = strings.TrimSpace(payload.Name)
	agent.Title = strings.TrimSpace(payload.Title)
	agent.Description = strings.TrimSpace(payload.Description)
	agent.SystemInstructions = payload.SystemInstructions
	agent.AvatarURL = strings.TrimSpace(payload.AvatarURL)

	if err := h.repo.UpdateAgent(r.Context(), agent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "agent not found")
			return
		}
		slog.Error("Failed to update agent", "error", err, "agent_id", agentID)
		Error(w, http.StatusInternalServerError, "failed to update agent")
		return
	}

	JSON(w, http.StatusOK, agent)
}

// DeleteAgent removes an agent persona. Chat histories that reference
// the agent are kept; users can still read and clear them.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	if err := h.repo.DeleteAgent(r.Context(), agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "agent not found")
			return
		}
		slog.Error("Failed to delete agent", "error", err, "agent_id", agentID)
		Error(w, http.StatusInternalServerError, "failed to delete agent")
		return
	}

	slog.Info("Agent deleted", "agent_id", agentID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
