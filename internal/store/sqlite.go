package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayeresko/personadesk/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		messages_left INTEGER NOT NULL DEFAULT 0,
		gemini_api_key TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		system_instructions TEXT NOT NULL,
		avatar_url TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		file_name TEXT,
		file_mime TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_turns_user_agent ON chat_turns(user_id, agent_id, id);

	CREATE TABLE IF NOT EXISTS links (
		link_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_user ON links(user_id, created_at);

	CREATE TABLE IF NOT EXISTS apps (
		app_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		description TEXT NOT NULL,
		icon_url TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, role, messages_left, gemini_api_key, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Username, &user.Role,
		&user.MessagesLeft, &user.GeminiAPIKey,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record. On conflict only the
// profile columns change; messages_left and gemini_api_key keep their
// stored values so a repeat upsert never refills a quota.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, role, messages_left, gemini_api_key, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		role = excluded.role,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, user.Role,
		user.MessagesLeft, user.GeminiAPIKey,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// SetGeminiKey overwrites the user's stored API credential.
func (s *SQLiteStore) SetGeminiKey(ctx context.Context, userID, key string) error {
	query := `UPDATE users SET gemini_api_key = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, key, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("set gemini key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("set gemini key for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// DecrementMessages atomically decrements the quota counter.
// Guard and decrement are a single conditional UPDATE so concurrent
// calls for the same user can never drive the counter negative.
func (s *SQLiteStore) DecrementMessages(ctx context.Context, userID string) (int, error) {
	query := `
		UPDATE users SET messages_left = messages_left - 1, updated_at = ?
		WHERE user_id = ? AND messages_left > 0
		RETURNING messages_left`

	var remaining int
	err := s.db.QueryRowContext(ctx, query, time.Now().Unix(), userID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrQuotaExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("decrement messages: %w", err)
	}
	return remaining, nil
}

// AppendTurns appends turns to the (user, agent) history in order.
func (s *SQLiteStore) AppendTurns(ctx context.Context, userID, agentID string, turns []domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turns: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO chat_turns (user_id, agent_id, role, content, file_name, file_mime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	for _, turn := range turns {
		var fileName, fileMime interface{}
		if turn.File != nil {
			fileName = turn.File.Name
			fileMime = turn.File.MimeType
		}
		if _, err := tx.ExecContext(ctx, query,
			userID, agentID, turn.Role, turn.Content,
			fileName, fileMime, turn.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append turns: %w", err)
	}
	return nil
}

// GetHistory returns the full ordered history for (user, agent).
func (s *SQLiteStore) GetHistory(ctx context.Context, userID, agentID string) ([]domain.Turn, error) {
	query := `
		SELECT role, content, file_name, file_mime, created_at
		FROM chat_turns WHERE user_id = ? AND agent_id = ?
		ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, agentID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	turns := []domain.Turn{}
	for rows.Next() {
		var turn domain.Turn
		var fileName, fileMime sql.NullString
		var createdAt int64

		if err := rows.Scan(&turn.Role, &turn.Content, &fileName, &fileMime, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}

		if fileName.Valid {
			turn.File = &domain.FileRef{Name: fileName.String, MimeType: fileMime.String}
		}
		turn.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return turns, nil
}

// ClearHistory removes the agent's history for the user entirely.
func (s *SQLiteStore) ClearHistory(ctx context.Context, userID, agentID string) error {
	query := `DELETE FROM chat_turns WHERE user_id = ? AND agent_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, agentID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// ListAgents returns all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	query := `
		SELECT agent_id, name, title, description, system_instructions, avatar_url, created_at, updated_at
		FROM agents ORDER BY created_at ASC, agent_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}

	return agents, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var avatarURL sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&agent.ID, &agent.Name, &agent.Title, &agent.Description,
		&agent.SystemInstructions, &avatarURL, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.AvatarURL = avatarURL.String
	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)
	return &agent, nil
}

// GetAgent retrieves an agent by ID, or nil if none exists.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `
		SELECT agent_id, name, title, description, system_instructions, avatar_url, created_at, updated_at
		FROM agents WHERE agent_id = ?`

	agent, err := scanAgent(s.db.QueryRowContext(ctx, query, agentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return agent, nil
}

// CreateAgent inserts a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (agent_id, name, title, description, system_instructions, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var avatarURL interface{}
	if agent.AvatarURL != "" {
		avatarURL = agent.AvatarURL
	}

	_, err := s.db.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.Title, agent.Description,
		agent.SystemInstructions, avatarURL,
		agent.CreatedAt.Unix(), agent.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// UpdateAgent updates an existing agent.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		UPDATE agents SET name = ?, title = ?, description = ?,
			system_instructions = ?, avatar_url = ?, updated_at = ?
		WHERE agent_id = ?`

	var avatarURL interface{}
	if agent.AvatarURL != "" {
		avatarURL = agent.AvatarURL
	}

	result, err := s.db.ExecContext(ctx, query,
		agent.Name, agent.Title, agent.Description,
		agent.SystemInstructions, avatarURL,
		time.Now().Unix(), agent.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update agent %s: %w", agent.ID, ErrNotFound)
	}
	return nil
}

// DeleteAgent removes an agent. Chat histories referencing the agent
// are intentionally left in place.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, agentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete agent %s: %w", agentID, ErrNotFound)
	}
	return nil
}

// ListLinks returns the user's bookmarks, newest first.
func (s *SQLiteStore) ListLinks(ctx context.Context, userID string) ([]*domain.Link, error) {
	query := `
		SELECT link_id, user_id, url, title, created_at
		FROM links WHERE user_id = ? ORDER BY created_at DESC, link_id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var links []*domain.Link
	for rows.Next() {
		var link domain.Link
		var createdAt int64
		if err := rows.Scan(&link.ID, &link.UserID, &link.URL, &link.Title, &createdAt); err != nil {
			return nil, fmt.Errorf("scan link row: %w", err)
		}
		link.CreatedAt = time.Unix(createdAt, 0)
		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}

// CreateLink inserts a new bookmark.
func (s *SQLiteStore) CreateLink(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (link_id, user_id, url, title, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		link.ID, link.UserID, link.URL, link.Title, link.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// DeleteLink removes a bookmark. The user ID is part of the predicate
// so a user can only delete their own links.
func (s *SQLiteStore) DeleteLink(ctx context.Context, userID, linkID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM links WHERE link_id = ? AND user_id = ?`, linkID, userID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete link %s: %w", linkID, ErrNotFound)
	}
	return nil
}

// ListApps returns the curated app catalog.
func (s *SQLiteStore) ListApps(ctx context.Context) ([]*domain.App, error) {
	query := `
		SELECT app_id, name, url, description, icon_url, created_at, updated_at
		FROM apps ORDER BY name ASC, app_id ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query apps: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var apps []*domain.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate apps: %w", err)
	}

	return apps, nil
}

func scanApp(row rowScanner) (*domain.App, error) {
	var app domain.App
	var iconURL sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&app.ID, &app.Name, &app.URL, &app.Description, &iconURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan app row: %w", err)
	}

	app.IconURL = iconURL.String
	app.CreatedAt = time.Unix(createdAt, 0)
	app.UpdatedAt = time.Unix(updatedAt, 0)
	return &app, nil
}

// GetApp retrieves an app by ID, or nil if none exists.
func (s *SQLiteStore) GetApp(ctx context.Context, appID string) (*domain.App, error) {
	query := `
		SELECT app_id, name, url, description, icon_url, created_at, updated_at
		FROM apps WHERE app_id = ?`

	app, err := scanApp(s.db.QueryRowContext(ctx, query, appID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return app, nil
}

// CreateApp inserts a new catalog entry.
func (s *SQLiteStore) CreateApp(ctx context.Context, app *domain.App) error {
	query := `
		INSERT INTO apps (app_id, name, url, description, icon_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	var iconURL interface{}
	if app.IconURL != "" {
		iconURL = app.IconURL
	}

	_, err := s.db.ExecContext(ctx, query,
		app.ID, app.Name, app.URL, app.Description, iconURL,
		app.CreatedAt.Unix(), app.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

// UpdateApp updates an existing catalog entry.
func (s *SQLiteStore) UpdateApp(ctx context.Context, app *domain.App) error {
	query := `
		UPDATE apps SET name = ?, url = ?, description = ?, icon_url = ?, updated_at = ?
		WHERE app_id = ?`

	var iconURL interface{}
	if app.IconURL != "" {
		iconURL = app.IconURL
	}

	result, err := s.db.ExecContext(ctx, query,
		app.Name, app.URL, app.Description, iconURL, time.Now().Unix(), app.ID,
	)
	if err != nil {
		return fmt.Errorf("update app: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update app %s: %w", app.ID, ErrNotFound)
	}
	return nil
}

// DeleteApp removes a catalog entry.
func (s *SQLiteStore) DeleteApp(ctx context.Context, appID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE app_id = ?`, appID)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete app %s: %w", appID, ErrNotFound)
	}
	return nil
}
