package api

import (
	"errors"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/ayeresko/personadesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// maxTitleFetchBytes caps how much of a bookmarked page is read when
// looking for its <title>.
const maxTitleFetchBytes = 256 << 10 // 256KB

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// RegisterLinkRoutes registers per-user bookmark routes.
func (h *Handler) RegisterLinkRoutes(r chi.Router) {
	r.Route("/api/links", func(r chi.Router) {
		r.Get("/", h.ListLinks)
		r.Post("/", h.CreateLink)
		r.Delete("/{linkID}", h.DeleteLink)
	})
}

// ListLinks returns the current user's bookmarks.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	links, err := h.repo.ListLinks(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list links", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list links")
		return
	}
	if links == nil {
		links = []*domain.Link{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"links": links})
}

type linkPayload struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// CreateLink bookmarks a URL for the current user. When no title is
// supplied the page title is fetched with a 10s ceiling; fetch failure
// falls back to the raw URL and never fails the create.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var payload linkPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	rawURL := strings.TrimSpace(payload.URL)
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		Error(w, http.StatusBadRequest, "url must be a valid http(s) URL")
		return
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = h.fetchPageTitle(rawURL)
	}

	link := &domain.Link{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       rawURL,
		Title:     title,
		CreatedAt: time.Now(),
	}

	if err := h.repo.CreateLink(r.Context(), link); err != nil {
		slog.Error("Failed to create link", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create link")
		return
	}

	JSON(w, http.StatusCreated, link)
}

// DeleteLink removes one of the current user's bookmarks.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	linkID := chi.URLParam(r, "linkID")

	if err := h.repo.DeleteLink(r.Context(), userID, linkID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "link not found")
			return
		}
		slog.Error("Failed to delete link", "error", err, "user_id", userID, "link_id", linkID)
		Error(w, http.StatusInternalServerError, "failed to delete link")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// fetchPageTitle fetches the bookmarked page and extracts its <title>.
// Best effort only; any failure falls back to the raw URL.
func (h *Handler) fetchPageTitle(rawURL string) string {
	client := &http.Client{Timeout: h.cfg.LinkFetchTimeout}

	resp, err := client.Get(rawURL)
	if err != nil {
		slog.Debug("Link title fetch failed", "error", err, "url", rawURL)
		return rawURL
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort fetch

	if resp.StatusCode != http.StatusOK {
		return rawURL
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTitleFetchBytes))
	if err != nil {
		return rawURL
	}

	match := titlePattern.FindSubmatch(body)
	if match == nil {
		return rawURL
	}
	title := strings.TrimSpace(html.UnescapeString(string(match[1])))
	if title == "" {
		return rawURL
	}
	return title
}
