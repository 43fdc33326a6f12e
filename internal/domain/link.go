package domain

import (
	"time"
)

// Link is a per-user bookmarked URL with a fetched or user-supplied title.
type Link struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
