package models

import (
	"time"
)

// StoreState is the aggregate the store writes through to its persistence
// slot after every mutation and rehydrates from at startup.
type StoreState struct {
	Characters        []Character `json:"characters"`
	Conversations     []Message   `json:"conversations"`
	ActiveCharacterID string      `json:"active_character_id,omitempty"`
}

// ExportVersion is the current export file format version.
const ExportVersion = "1.0"

// ExportBlob is the interchange format for full-state export. Import accepts
// any JSON object carrying a characters array, so older exporters and
// foreign tools remain readable.
type ExportBlob struct {
	Characters    []Character `json:"characters"`
	Conversations []Message   `json:"conversations"`
	ExportedAt    time.Time   `json:"exportedAt"`
	Version       string      `json:"version"`
}
