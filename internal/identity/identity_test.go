package identity

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayeresko/personadesk/internal/config"
	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                "8080",
		DBPath:              "ignored",
		GeminiModel:         "gemini-2.5-flash",
		GenerationTimeout:   time.Minute,
		DefaultMessagesLeft: 20,
		AdminUserIDs:        []string{"anon_ffffffffffffffffffffffffffffffff"},
		LinkFetchTimeout:    10 * time.Second,
	}
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "identity.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func echoIdentity(t *testing.T) (http.Handler, *string, *string) {
	t.Helper()

	var gotUser, gotRole string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &gotUser, &gotRole
}

func TestGenerateAnonID(t *testing.T) {
	id, err := generateAnonID()
	if err != nil {
		t.Fatalf("Failed to generate id: %v", err)
	}
	if !isValidAnonID(id) {
		t.Errorf("Generated id %q does not match the expected form", id)
	}

	other, _ := generateAnonID()
	if id == other {
		t.Errorf("Two generated ids collided: %q", id)
	}
}

func TestIsValidAnonID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"anon_0123456789abcdef0123456789abcdef", true},
		{"anon_0123456789ABCDEF0123456789ABCDEF", false},
		{"anon_short", false},
		{"user_0123456789abcdef0123456789abcdef", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isValidAnonID(tt.id); got != tt.want {
			t.Errorf("isValidAnonID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestMiddlewareIssuesCookieAndCreatesUser(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	inner, gotUser, gotRole := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == AnonCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatalf("Expected %s cookie to be set", AnonCookieName)
	}
	if !isValidAnonID(cookie.Value) {
		t.Errorf("Cookie value %q is not a valid anon id", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Errorf("Expected HttpOnly cookie")
	}

	if *gotUser != cookie.Value {
		t.Errorf("Context user %q does not match cookie %q", *gotUser, cookie.Value)
	}
	if *gotRole != domain.RoleUser {
		t.Errorf("Expected role %q, got %q", domain.RoleUser, *gotRole)
	}

	user, err := repo.GetUser(req.Context(), cookie.Value)
	if err != nil || user == nil {
		t.Fatalf("Expected user row to exist: %v", err)
	}
	if user.MessagesLeft != cfg.DefaultMessagesLeft {
		t.Errorf("Expected default quota %d, got %d", cfg.DefaultMessagesLeft, user.MessagesLeft)
	}
}

func TestMiddlewareReusesExistingCookie(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	inner, gotUser, _ := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	const id = "anon_0123456789abcdef0123456789abcdef"
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *gotUser != id {
		t.Errorf("Expected existing identity %q, got %q", id, *gotUser)
	}
}

func TestMiddlewareRejectsMalformedCookie(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	inner, gotUser, _ := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "not-an-anon-id"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *gotUser == "not-an-anon-id" {
		t.Errorf("Malformed cookie value must not be trusted")
	}
	if !isValidAnonID(*gotUser) {
		t.Errorf("Expected a fresh identity, got %q", *gotUser)
	}
}

func TestMiddlewareGrantsConfiguredAdmin(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	inner, _, gotRole := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: cfg.AdminUserIDs[0]})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *gotRole != domain.RoleAdmin {
		t.Errorf("Expected admin role for configured user, got %q", *gotRole)
	}

	user, err := repo.GetUser(req.Context(), cfg.AdminUserIDs[0])
	if err != nil || user == nil {
		t.Fatalf("Expected admin user row: %v", err)
	}
	if user.Role != domain.RoleAdmin {
		t.Errorf("Expected persisted admin role, got %q", user.Role)
	}
}

func TestMiddlewarePromotesExistingUser(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	adminID := cfg.AdminUserIDs[0]

	// Row created before the id was added to the admin list.
	now := time.Now()
	if err := repo.UpsertUser(t.Context(), &domain.User{
		UserID:       adminID,
		Username:     "anon-ffffffff",
		Role:         domain.RoleUser,
		MessagesLeft: 5,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	inner, _, gotRole := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: adminID})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if *gotRole != domain.RoleAdmin {
		t.Errorf("Expected promotion to admin, got %q", *gotRole)
	}

	user, _ := repo.GetUser(req.Context(), adminID)
	if user.Role != domain.RoleAdmin {
		t.Errorf("Expected persisted promotion, got %q", user.Role)
	}
	if user.MessagesLeft != 5 {
		t.Errorf("Promotion must not reset quota, got %d", user.MessagesLeft)
	}
}

func TestMiddlewareDoesNotResetQuota(t *testing.T) {
	repo := newTestRepo(t)
	cfg := testConfig()
	inner, _, _ := echoIdentity(t)
	handler := Middleware(repo, cfg)(inner)

	const id = "anon_0123456789abcdef0123456789abcdef"
	now := time.Now()
	if err := repo.UpsertUser(t.Context(), &domain.User{
		UserID:       id,
		Username:     "anon-89abcdef",
		Role:         domain.RoleUser,
		MessagesLeft: 3,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	user, _ := repo.GetUser(req.Context(), id)
	if user.MessagesLeft != 3 {
		t.Errorf("Repeat visit must not touch quota, got %d", user.MessagesLeft)
	}
}
