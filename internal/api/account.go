package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/go-chi/chi/v5"
)

// minGeminiKeyLength is the only validation applied to a stored key.
// The key itself is never verified against the upstream service.
const minGeminiKeyLength = 8

// RegisterAccountRoutes registers identity and account routes.
func (h *Handler) RegisterAccountRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Put("/api/account/gemini-key", h.UpdateGeminiKey)
}

// GetMe returns the current user's information.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        user.UserID,
		"username":       user.Username,
		"role":           user.Role,
		"messages_left":  user.MessagesLeft,
		"has_gemini_key": user.HasGeminiKey(),
	})
}

type geminiKeyPayload struct {
	Key string `json:"key"`
}

// UpdateGeminiKey overwrites the user's stored API credential.
// An empty key clears it.
func (h *Handler) UpdateGeminiKey(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload geminiKeyPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	key := strings.TrimSpace(payload.Key)
	if key != "" && len(key) < minGeminiKeyLength {
		Error(w, http.StatusBadRequest, "key is too short")
		return
	}

	if err := h.repo.SetGeminiKey(r.Context(), userID, key); err != nil {
		slog.Error("Failed to store gemini key", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to store key")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "saved",
		"has_key": key != "",
	})
}

// Health performs a deep health check including database connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}

// RegisterHealth registers the deep health endpoint. The cheap
// liveness probe is chi's Heartbeat middleware on /health.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
