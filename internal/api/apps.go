package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RegisterAppRoutes registers curated app catalog routes. The catalog
// is public to read and admin-managed.
func (h *Handler) RegisterAppRoutes(r chi.Router) {
	r.Route("/api/apps", func(r chi.Router) {
		r.Get("/", h.ListApps)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/", h.CreateApp)
			r.Put("/{appID}", h.UpdateApp)
			r.Delete("/{appID}", h.DeleteApp)
		})
	})
}

type appPayload struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url"`
}

func (p *appPayload) validate() string {
	if strings.TrimSpace(p.Name) == "" {
		return "name cannot be empty"
	}
	parsed, err := url.Parse(strings.TrimSpace(p.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "url must be a valid http(s) URL"
	}
	return ""
}

// ListApps returns the curated app catalog.
func (h *Handler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.repo.ListApps(r.Context())
	if err != nil {
		slog.Error("Failed to list apps", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list apps")
		return
	}
	if apps == nil {
		apps = []*domain.App{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"apps": apps})
}

// CreateApp adds an entry to the catalog.
func (h *Handler) CreateApp(w http.ResponseWriter, r *http.Request) {
	var payload appPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if msg := payload.validate(); msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now()
	app := &domain.App{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(payload.Name),
		URL:         strings.TrimSpace(payload.URL),
		Description: strings.TrimSpace(payload.Description),
		IconURL:     strings.TrimSpace(payload.IconURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.repo.CreateApp(r.Context(), app); err != nil {
		slog.Error("Failed to create app", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create app")
		return
	}

	slog.Info("App created", "app_id", app.ID, "name", app.Name)
	JSON(w, http.StatusCreated, app)
}

// UpdateApp updates a catalog entry.
func (h *Handler) UpdateApp(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	var payload appPayload
	if !decodeBody(w, r, &payload) {
		return
	}
	if msg := payload.validate(); msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}

	app, err := h.repo.GetApp(r.Context(), appID)
	if err != nil {
		slog.Error("Failed to load app", "error", err, "app_id", appID)
		Error(w, http.StatusInternalServerError, "failed to update app")
		return
	}
	if app == nil {
		Error(w, http.StatusNotFound, "app not found")
		return
	}

	app.Name = strings.TrimSpace(payload.Name)
	app.URL = strings.TrimSpace(payload.URL)
	app.Description = strings.TrimSpace(payload.Description)
	app.IconURL = strings.TrimSpace(payload.IconURL)

	if err := h.repo.UpdateApp(r.Context(), app); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "app not found")
			return
		}
		slog.Error("Failed to update app", "error", err, "app_id", appID)
		Error(w, http.StatusInternalServerError, "failed to update app")
		return
	}

	JSON(w, http.StatusOK, app)
}

// DeleteApp removes a catalog entry.
func (h *Handler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if err := h.repo.DeleteApp(r.Context(), appID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "app not found")
			return
		}
		slog.Error("Failed to delete app", "error", err, "app_id", appID)
		Error(w, http.StatusInternalServerError, "failed to delete app")
		return
	}

	slog.Info("App deleted", "app_id", appID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
