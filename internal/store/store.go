// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ayeresko/personadesk/internal/domain"
)

// ErrQuotaExhausted is returned by DecrementMessages when the user's
// counter is already at zero (or the user does not exist).
var ErrQuotaExhausted = errors.New("message quota exhausted")

// ErrNotFound is returned by updates and deletes that matched no row.
var ErrNotFound = errors.New("not found")

// Repository defines the interface for persisting users, agents,
// chat histories, links, and apps.
type Repository interface {
	// GetUser retrieves a user by ID, or nil if none exists.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record. Quota and credential
	// columns are set only on insert; updates never reset them.
	UpsertUser(ctx context.Context, user *domain.User) error

	// SetGeminiKey overwrites the user's stored API credential.
	// An empty key clears it.
	SetGeminiKey(ctx context.Context, userID, key string) error

	// DecrementMessages atomically decrements messages_left if it is
	// positive and returns the new value. The guard and the decrement
	// are one statement so concurrent calls can never drive the
	// counter negative. Returns ErrQuotaExhausted when nothing was
	// decremented.
	DecrementMessages(ctx context.Context, userID string) (int, error)

	// AppendTurns appends turns to the end of the (user, agent) history
	// in order, inside a single transaction.
	AppendTurns(ctx context.Context, userID, agentID string, turns []domain.Turn) error

	// GetHistory returns the full ordered history for (user, agent).
	// An absent history is an empty slice, never an error.
	GetHistory(ctx context.Context, userID, agentID string) ([]domain.Turn, error)

	// ClearHistory removes the agent's history for the user entirely.
	// Other agents' histories for the same user are untouched.
	ClearHistory(ctx context.Context, userID, agentID string) error

	// Agents.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	CreateAgent(ctx context.Context, agent *domain.Agent) error
	UpdateAgent(ctx context.Context, agent *domain.Agent) error
	DeleteAgent(ctx context.Context, agentID string) error

	// Links.
	ListLinks(ctx context.Context, userID string) ([]*domain.Link, error)
	CreateLink(ctx context.Context, link *domain.Link) error
	DeleteLink(ctx context.Context, userID, linkID string) error

	// Apps.
	ListApps(ctx context.Context) ([]*domain.App, error)
	GetApp(ctx context.Context, appID string) (*domain.App, error)
	CreateApp(ctx context.Context, app *domain.App) error
	UpdateApp(ctx context.Context, app *domain.App) error
	DeleteApp(ctx context.Context, appID string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
