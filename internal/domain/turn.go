package domain

import (
	"time"
)

// Turn roles. Histories conceptually alternate user/model but this is
// not enforced on append.
const (
	TurnRoleUser  = "user"
	TurnRoleModel = "model"
)

// FileRef records metadata of an attachment that accompanied a turn.
// Only the metadata is persisted, never the file bytes.
type FileRef struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Turn is one message (user or model) in a chat exchange.
// Turns are immutable once written; deletion happens only through a
// whole-agent history clear.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	File      *FileRef  `json:"file,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
