package domain

import (
	"time"
)

// Agent is a configured AI persona. Agents are global and admin-managed;
// they carry the system instructions used for every chat turn.
type Agent struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	SystemInstructions string    `json:"system_instructions"`
	AvatarURL          string    `json:"avatar_url,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
