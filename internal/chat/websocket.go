package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ayeresko/personadesk/internal/generation"
	"github.com/ayeresko/personadesk/internal/identity"
	"github.com/coder/websocket"
)

// WebSocketHandler streams chat turns over a WebSocket connection so
// the client can render model chunks as they arrive.
type WebSocketHandler struct {
	svc           *Orchestrator
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a streaming chat handler.
func NewWebSocketHandler(svc *Orchestrator, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		svc:           svc,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsSendFrame is a client-to-server chat submission.
type wsSendFrame struct {
	AgentID string       `json:"agent_id"`
	Message string       `json:"message"`
	File    *filePayload `json:"file,omitempty"`
}

// wsEventFrame is a server-to-client event.
type wsEventFrame struct {
	Type    string      `json:"type"` // "chunk", "done", "error"
	Content string      `json:"content,omitempty"`
	Error   string      `json:"error,omitempty"`
	Result  *SendResult `json:"result,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	// Frames carry inline base64 attachments, so the default 32KB read
	// limit is far too small. Match the HTTP body cap.
	ws.SetReadLimit(maxChatBodySize)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	slog.Info("Chat WebSocket connected", "user_id", userID, "ip", r.RemoteAddr)

	ctx := r.Context()
	for {
		var frame wsSendFrame
		if err := h.readJSON(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				slog.Debug("WebSocket read failed", "error", err, "user_id", userID)
			}
			return
		}

		if strings.TrimSpace(frame.Message) == "" || frame.AgentID == "" {
			h.writeEvent(ctx, ws, wsEventFrame{Type: "error", Error: "agent_id and message are required"})
			continue
		}

		attachment, err := decodeAttachment(frame.File)
		if err != nil {
			h.writeEvent(ctx, ws, wsEventFrame{Type: "error", Error: "invalid file data"})
			continue
		}

		result, err := h.svc.Send(ctx, SendRequest{
			UserID:     userID,
			AgentID:    frame.AgentID,
			Text:       frame.Message,
			Attachment: attachment,
			OnChunk: func(text string) {
				h.writeEvent(ctx, ws, wsEventFrame{Type: "chunk", Content: text})
			},
		})
		if err != nil {
			h.writeEvent(ctx, ws, wsEventFrame{Type: "error", Error: sendErrorMessage(err)})
			continue
		}

		h.writeEvent(ctx, ws, wsEventFrame{Type: "done", Result: result})
	}
}

func (h *WebSocketHandler) readJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (h *WebSocketHandler) writeEvent(ctx context.Context, ws *websocket.Conn, event wsEventFrame) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal websocket event", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write failed", "error", err)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	allowedURL, err := url.Parse(h.allowedOrigin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, allowedURL.Host)
}

// sendErrorMessage renders a pipeline error as an inline chat error.
func sendErrorMessage(err error) string {
	var genErr *generation.Error
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return "no messages left, add your own API key to continue"
	case errors.Is(err, ErrAgentNotFound):
		return "agent not found"
	case errors.Is(err, generation.ErrUnsupportedFile):
		return "images and videos are not supported, attach a document instead"
	case errors.As(err, &genErr):
		return genErr.Error()
	default:
		return "something went wrong, please try again"
	}
}
