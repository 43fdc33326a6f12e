// Package domain contains core domain types for PersonaDesk.
package domain

import (
	"time"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a dashboard user with quota and credential state.
type User struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	MessagesLeft int       `json:"messages_left"`
	GeminiAPIKey string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin returns true if the user may manage agents and the app catalog.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// HasGeminiKey returns true if the user supplied their own API credential.
func (u *User) HasGeminiKey() bool {
	return u.GeminiAPIKey != ""
}

// CanSendMessage reports whether a chat turn may proceed.
// A stored credential bypasses the quota entirely; the key is not
// validated here, an invalid one simply fails at generation time.
func (u *User) CanSendMessage() bool {
	return u.HasGeminiKey() || u.MessagesLeft > 0
}
