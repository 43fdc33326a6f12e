// Package chat implements the per-message turn pipeline: validate
// quota/credential state, call the generation gateway once, persist the
// turn pair, and conditionally decrement the quota.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayeresko/personadesk/internal/domain"
	"github.com/ayeresko/personadesk/internal/generation"
	"github.com/ayeresko/personadesk/internal/metrics"
	"github.com/ayeresko/personadesk/internal/store"
)

var (
	// ErrAuthRequired is returned when no user resolves for the request.
	ErrAuthRequired = errors.New("authentication required")

	// ErrQuotaExhausted is returned when the user has no messages left
	// and no stored credential. The check runs before any generation
	// call is made.
	ErrQuotaExhausted = errors.New("message quota exhausted")

	// ErrAgentNotFound is returned when the target agent does not exist.
	ErrAgentNotFound = errors.New("agent not found")
)

// Store is the persistence surface the orchestrator needs.
// *store.SQLiteStore satisfies it.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	AppendTurns(ctx context.Context, userID, agentID string, turns []domain.Turn) error
	DecrementMessages(ctx context.Context, userID string) (int, error)
	GetHistory(ctx context.Context, userID, agentID string) ([]domain.Turn, error)
	ClearHistory(ctx context.Context, userID, agentID string) error
}

// Generator produces model output for a single turn.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Orchestrator sequences one chat turn end to end.
type Orchestrator struct {
	store   Store
	gen     Generator
	metrics *metrics.Metrics
}

// NewOrchestrator creates a turn orchestrator. metrics may be nil.
func NewOrchestrator(st Store, gen Generator, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{store: st, gen: gen, metrics: m}
}

// SendRequest is one submitted chat message.
type SendRequest struct {
	UserID     string
	AgentID    string
	Text       string
	Attachment *generation.Attachment
	// OnChunk, when set, receives model text chunks as they stream in.
	OnChunk func(text string)
}

// SendResult is the rendered outcome of a successful turn.
type SendResult struct {
	UserTurn     domain.Turn `json:"user_turn"`
	ModelTurn    domain.Turn `json:"model_turn"`
	MessagesLeft int         `json:"messages_left"`
	QuotaUsed    bool        `json:"quota_used"`
}

// Send runs the turn pipeline: Validate -> Generate -> Persist.
// Generation failures mutate nothing. The history append and the quota
// decrement are separate statements, not one transaction; a failure
// between them leaves the persisted turns without a matching decrement.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	user, err := o.store.GetUser(ctx, req.UserID)
	if err != nil {
		o.metrics.ObserveTurn(metrics.OutcomeStoreFailed)
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrAuthRequired
	}

	agent, err := o.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		o.metrics.ObserveTurn(metrics.OutcomeStoreFailed)
		return nil, fmt.Errorf("load agent: %w", err)
	}
	if agent == nil {
		return nil, ErrAgentNotFound
	}

	// Fail fast before spending an external call.
	if !user.CanSendMessage() {
		o.metrics.ObserveTurn(metrics.OutcomeQuotaRejected)
		return nil, ErrQuotaExhausted
	}

	started := time.Now()
	result, err := o.gen.Generate(ctx, generation.Request{
		SystemInstructions: agent.SystemInstructions,
		UserText:           req.Text,
		Attachment:         req.Attachment,
		Credential:         user.GeminiAPIKey,
		OnChunk:            req.OnChunk,
	})
	o.metrics.ObserveGeneration(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, generation.ErrUnsupportedFile) {
			o.metrics.ObserveTurn(metrics.OutcomeFileRejected)
		} else {
			o.metrics.ObserveTurn(metrics.OutcomeGenerationFailed)
		}
		return nil, err
	}

	now := time.Now()
	userTurn := domain.Turn{
		Role:      domain.TurnRoleUser,
		Content:   req.Text,
		CreatedAt: now,
	}
	if req.Attachment != nil {
		userTurn.File = &domain.FileRef{Name: req.Attachment.Name, MimeType: req.Attachment.MimeType}
	}
	modelTurn := domain.Turn{
		Role:      domain.TurnRoleModel,
		Content:   result.Text,
		CreatedAt: now,
	}

	// One logical append: both turns land in a single transaction.
	if err := o.store.AppendTurns(ctx, req.UserID, req.AgentID, []domain.Turn{userTurn, modelTurn}); err != nil {
		o.metrics.ObserveTurn(metrics.OutcomeStoreFailed)
		return nil, fmt.Errorf("persist turns: %w", err)
	}

	remaining := user.MessagesLeft
	quotaUsed := false
	if !user.HasGeminiKey() {
		remaining, err = o.store.DecrementMessages(ctx, req.UserID)
		switch {
		case errors.Is(err, store.ErrQuotaExhausted):
			// A concurrent turn won the last unit after our validation
			// read. The turn already generated and persisted, so it is
			// still returned.
			slog.Warn("quota decrement lost race", "user_id", req.UserID, "agent_id", req.AgentID)
			remaining = 0
		case err != nil:
			o.metrics.ObserveTurn(metrics.OutcomeStoreFailed)
			return nil, fmt.Errorf("decrement quota: %w", err)
		default:
			quotaUsed = true
			o.metrics.ObserveQuotaDecrement()
		}
	}

	o.metrics.ObserveTurn(metrics.OutcomeOK)
	slog.Info("chat turn completed",
		"user_id", req.UserID,
		"agent_id", req.AgentID,
		"quota_used", quotaUsed,
		"messages_left", remaining,
	)

	return &SendResult{
		UserTurn:     userTurn,
		ModelTurn:    modelTurn,
		MessagesLeft: remaining,
		QuotaUsed:    quotaUsed,
	}, nil
}

// History returns the full ordered history for (user, agent).
func (o *Orchestrator) History(ctx context.Context, userID, agentID string) ([]domain.Turn, error) {
	return o.store.GetHistory(ctx, userID, agentID)
}

// ClearHistory removes the agent's history for the user.
func (o *Orchestrator) ClearHistory(ctx context.Context, userID, agentID string) error {
	return o.store.ClearHistory(ctx, userID, agentID)
}
