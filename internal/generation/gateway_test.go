package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSupportedMimeType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"text/plain", true},
		{"text/markdown", true},
		{"application/json", true},
		{"image/png", false},
		{"image/jpeg", false},
		{"video/mp4", false},
		{"IMAGE/PNG", false},
		{" image/png ", false},
	}

	for _, tt := range tests {
		if got := SupportedMimeType(tt.mimeType); got != tt.want {
			t.Errorf("SupportedMimeType(%q) = %v, want %v", tt.mimeType, got, tt.want)
		}
	}
}

func TestGenerateRejectsImageBeforeAnyCall(t *testing.T) {
	// No credential configured anywhere: if the MIME gate did not fire
	// first, Generate would fail with a credential error instead.
	g := NewGateway("", "gemini-2.5-flash", time.Second)

	_, err := g.Generate(context.Background(), Request{
		UserText:   "describe this",
		Attachment: &Attachment{Name: "pic.png", MimeType: "image/png", Data: []byte{1}},
	})

	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("Expected ErrUnsupportedFile, got %v", err)
	}
}

func TestGenerateRequiresSomeCredential(t *testing.T) {
	g := NewGateway("", "gemini-2.5-flash", time.Second)

	_, err := g.Generate(context.Background(), Request{UserText: "hello"})

	var genErr *Error
	if !errors.As(err, &genErr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if !strings.Contains(genErr.Error(), "credential") {
		t.Errorf("Expected credential message, got %q", genErr.Error())
	}
}

func TestClassifyFileTimeout(t *testing.T) {
	err := classify(context.DeadlineExceeded, true)
	if !err.FileRelated {
		t.Errorf("Expected file-related classification for deadline with attachment")
	}
	if !strings.Contains(err.Error(), "file took too long") {
		t.Errorf("Expected file timeout message, got %q", err.Error())
	}

	err = classify(context.DeadlineExceeded, false)
	if err.FileRelated {
		t.Errorf("Timeout without attachment must not be file-related")
	}

	err = classify(errors.New("connection reset"), true)
	if err.FileRelated {
		t.Errorf("Non-timeout error must not be file-related")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("upstream 429")
	err := &Error{Err: cause}

	if !errors.Is(err, cause) {
		t.Errorf("Expected Unwrap to expose the cause")
	}
	if !strings.Contains(err.Error(), "generation failed") {
		t.Errorf("Expected generic message, got %q", err.Error())
	}
}
