package models

import "time"

// ChatMessage is a message in the shared chat room.
type ChatMessage struct {
	ID        int       `json:"id"`
	AuthorID  int       `json:"author_id"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"created_at"`
}
