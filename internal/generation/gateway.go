// Package generation wraps the Gemini API behind a single best-effort
// generate call: no retry, no backoff, no mid-stream resume.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrUnsupportedFile is returned when an attachment carries an image or
// video MIME type. Only document-like attachments are forwarded.
var ErrUnsupportedFile = errors.New("unsupported attachment type")

// Error is the single failure type for external generation errors.
// All upstream failure subtypes (rate limit, auth, network) collapse
// into it; FileRelated only selects the user-facing message.
type Error struct {
	FileRelated bool
	Err         error
}

func (e *Error) Error() string {
	if e.FileRelated {
		return fmt.Sprintf("the attached file took too long to process, try again without it: %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Attachment is a single inline file forwarded with the user text.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request describes one generation call.
type Request struct {
	SystemInstructions string
	UserText           string
	Attachment         *Attachment
	// Credential is the user-supplied API key; empty means the server key.
	Credential string
	// OnChunk, when set, receives each text chunk as it streams in.
	OnChunk func(text string)
}

// Result is the accumulated generation output.
type Result struct {
	Text string
}

// Gateway invokes the Gemini API for chat turns.
type Gateway struct {
	serverKey string
	model     string
	timeout   time.Duration
}

// NewGateway creates a gateway using the given server-funded key as the
// fallback credential.
func NewGateway(serverKey, model string, timeout time.Duration) *Gateway {
	return &Gateway{
		serverKey: serverKey,
		model:     model,
		timeout:   timeout,
	}
}

// SupportedMimeType reports whether an attachment of the given MIME
// type may be forwarded to the model.
func SupportedMimeType(mimeType string) bool {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	return !strings.HasPrefix(m, "image/") && !strings.HasPrefix(m, "video/")
}

// Generate performs a single streaming generation attempt and returns
// the accumulated text. If the stream drops after text has arrived,
// the partial text is returned as the result; if nothing accumulated,
// the failure is surfaced as *Error.
func (g *Gateway) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Attachment != nil && !SupportedMimeType(req.Attachment.MimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, req.Attachment.MimeType)
	}

	key := req.Credential
	if key == "" {
		key = g.serverKey
	}
	if key == "" {
		return nil, &Error{Err: errors.New("no API credential configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("create client: %w", err)}
	}

	parts := []*genai.Part{genai.NewPartFromText(req.UserText)}
	if req.Attachment != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Attachment.Data, req.Attachment.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genCfg := &genai.GenerateContentConfig{}
	if req.SystemInstructions != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemInstructions, genai.RoleUser)
	}

	var sb strings.Builder
	for resp, err := range client.Models.GenerateContentStream(ctx, g.model, contents, genCfg) {
		if err != nil {
			// A dropped stream yields whatever accumulated so far.
			if sb.Len() > 0 {
				break
			}
			return nil, classify(err, req.Attachment != nil)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if req.OnChunk != nil {
			req.OnChunk(chunk)
		}
	}

	if sb.Len() == 0 {
		return nil, &Error{Err: errors.New("model returned no text")}
	}
	return &Result{Text: sb.String()}, nil
}

// classify maps an upstream failure to the gateway's single error type,
// distinguishing only file-related timeouts from everything else.
func classify(err error, hasAttachment bool) *Error {
	fileRelated := false
	if hasAttachment {
		msg := strings.ToLower(err.Error())
		fileRelated = errors.Is(err, context.DeadlineExceeded) ||
			strings.Contains(msg, "deadline") ||
			strings.Contains(msg, "timeout")
	}
	return &Error{FileRelated: fileRelated, Err: err}
}
