package models

import (
	"time"
)

// Message is a single chat message belonging to exactly one character's
// conversation. Messages for a character are totally ordered by Timestamp,
// which the store keeps strictly increasing across appends.
type Message struct {
	ID          string     `json:"id"`
	CharacterID string     `json:"character_id"`
	Text        string     `json:"text"`
	IsUser      bool       `json:"is_user"`
	Timestamp   time.Time  `json:"timestamp"`
	Edited      bool       `json:"edited,omitempty"`
	EditedAt    *time.Time `json:"edited_at,omitempty"`
}
