package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/ayeresko/personadesk/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, repo store.Repository, gen Generator, userID string) chi.Router {
	t.Helper()

	handler := NewHandler(NewOrchestrator(repo, gen, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithUser(req.Context(), userID, domain.RoleUser)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleSendSuccess(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi there"}, "user-a")

	w := postJSON(t, r, "/api/chat/agent-x", sendPayload{Message: "hello"})

	require.Equal(t, http.StatusOK, w.Code)

	var result SendResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, "hello", result.UserTurn.Content)
	assert.Equal(t, "hi there", result.ModelTurn.Content)
	assert.Equal(t, 2, result.MessagesLeft)
}

func TestHandleSendEmptyMessage(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi"}, "user-a")

	w := postJSON(t, r, "/api/chat/agent-x", sendPayload{Message: "   "})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSendQuotaExhausted(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 0, "")
	gen := &fakeGenerator{reply: "hi"}
	r := newTestRouter(t, repo, gen, "user-a")

	w := postJSON(t, r, "/api/chat/agent-x", sendPayload{Message: "hello"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.EqualValues(t, 0, gen.callCount())
}

func TestHandleSendUnsupportedFile(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi"}, "user-a")

	w := postJSON(t, r, "/api/chat/agent-x", sendPayload{
		Message: "look",
		File:    &filePayload{Name: "clip.mp4", MimeType: "video/mp4", Data: "AAAA"},
	})

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestHandleSendUnknownAgent(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi"}, "user-a")

	w := postJSON(t, r, "/api/chat/no-such-agent", sendPayload{Message: "hello"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleSendInvalidBase64(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi"}, "user-a")

	w := postJSON(t, r, "/api/chat/agent-x", sendPayload{
		Message: "look",
		File:    &filePayload{Name: "doc.pdf", MimeType: "application/pdf", Data: "not-base64!!!"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistoryAndClear(t *testing.T) {
	repo := newTestRepo(t)
	seedFixtures(t, repo, 3, "")
	r := newTestRouter(t, repo, &fakeGenerator{reply: "hi there"}, "user-a")

	postJSON(t, r, "/api/chat/agent-x", sendPayload{Message: "hello"})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/agent-x/history", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		Turns []domain.Turn `json:"turns"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	require.Len(t, payload.Turns, 2)
	assert.Equal(t, "hello", payload.Turns[0].Content)

	req = httptest.NewRequest(http.MethodDelete, "/api/chat/agent-x/history", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chat/agent-x/history", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))
	assert.Empty(t, payload.Turns)
}
