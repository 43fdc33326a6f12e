package chat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ayeresko/personadesk/internal/api"
	"github.com/ayeresko/personadesk/internal/generation"
	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

// maxChatBodySize bounds the request body; attachments arrive inline
// as base64 so this is larger than the usual JSON cap.
const maxChatBodySize = 8 << 20 // 8MB

// Handler exposes the chat pipeline over HTTP.
type Handler struct {
	svc *Orchestrator
}

// NewHandler creates a chat handler.
func NewHandler(svc *Orchestrator) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat/{agentID}", func(r chi.Router) {
		r.Post("/", h.HandleSend)
		r.Get("/history", h.HandleHistory)
		r.Delete("/history", h.HandleClearHistory)
	})
}

type filePayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type sendPayload struct {
	Message string       `json:"message"`
	File    *filePayload `json:"file,omitempty"`
}

// HandleSend runs one chat turn.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)
	var payload sendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	attachment, err := decodeAttachment(payload.File)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid file data")
		return
	}

	result, err := h.svc.Send(r.Context(), SendRequest{
		UserID:     userID,
		AgentID:    agentID,
		Text:       payload.Message,
		Attachment: attachment,
	})
	if err != nil {
		writeSendError(w, err, userID, agentID)
		return
	}

	api.JSON(w, http.StatusOK, result)
}

// HandleHistory returns the full ordered history for the agent.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	turns, err := h.svc.History(r.Context(), userID, agentID)
	if err != nil {
		slog.Error("Failed to load history", "error", err, "user_id", userID, "agent_id", agentID)
		api.Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}

	api.JSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

// HandleClearHistory removes the agent's history for the user.
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	agentID := chi.URLParam(r, "agentID")

	if err := h.svc.ClearHistory(r.Context(), userID, agentID); err != nil {
		slog.Error("Failed to clear history", "error", err, "user_id", userID, "agent_id", agentID)
		api.Error(w, http.StatusInternalServerError, "failed to clear history")
		return
	}

	api.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func decodeAttachment(file *filePayload) (*generation.Attachment, error) {
	if file == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(file.Data)
	if err != nil {
		return nil, err
	}
	return &generation.Attachment{
		Name:     file.Name,
		MimeType: file.MimeType,
		Data:     data,
	}, nil
}

// writeSendError maps pipeline errors to HTTP responses. Failures are
// inline errors the client renders in the chat view; none are fatal.
func writeSendError(w http.ResponseWriter, err error, userID, agentID string) {
	var genErr *generation.Error
	switch {
	case errors.Is(err, ErrAuthRequired):
		api.Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, ErrAgentNotFound):
		api.Error(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, ErrQuotaExhausted):
		api.Error(w, http.StatusTooManyRequests, "no messages left, add your own API key to continue")
	case errors.Is(err, generation.ErrUnsupportedFile):
		api.Error(w, http.StatusUnsupportedMediaType, "images and videos are not supported, attach a document instead")
	case errors.As(err, &genErr):
		slog.Warn("Generation failed", "error", err, "user_id", userID, "agent_id", agentID)
		api.Error(w, http.StatusBadGateway, genErr.Error())
	default:
		slog.Error("Chat turn failed", "error", err, "user_id", userID, "agent_id", agentID)
		api.Error(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}
