package models

import (
	"strings"
	"time"
)

// Personality classifies a character's response style and pacing.
type Personality string

const (
	PersonalityFriendly    Personality = "friendly"
	PersonalitySarcastic   Personality = "sarcastic"
	PersonalityWise        Personality = "wise"
	PersonalityMysterious  Personality = "mysterious"
	PersonalityCheerful    Personality = "cheerful"
	PersonalitySerious     Personality = "serious"
	PersonalityRomantic    Personality = "romantic"
	PersonalityAdventurous Personality = "adventurous"
)

// MinBackstoryLen is the minimum backstory length enforced by the character
// creation flow.
const MinBackstoryLen = 50

// ParsePersonality resolves an external personality string to a known
// variant. Unrecognized values map to friendly, so downstream code never
// branches on free-form strings.
func ParsePersonality(s string) Personality {
	switch Personality(strings.ToLower(strings.TrimSpace(s))) {
	case PersonalitySarcastic:
		return PersonalitySarcastic
	case PersonalityWise:
		return PersonalityWise
	case PersonalityMysterious:
		return PersonalityMysterious
	case PersonalityCheerful:
		return PersonalityCheerful
	case PersonalitySerious:
		return PersonalitySerious
	case PersonalityRomantic:
		return PersonalityRomantic
	case PersonalityAdventurous:
		return PersonalityAdventurous
	default:
		return PersonalityFriendly
	}
}

// Character is a user-authored persona chatted with through the pipeline.
type Character struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Personality Personality `json:"personality"`
	Backstory   string      `json:"backstory"`
	IsFavorite  bool        `json:"is_favorite"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// CharacterInput carries the fields of a create-character request. Field
// presence is validated by the creation flow; the store only re-checks the
// invariants it owns (non-empty name).
type CharacterInput struct {
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Backstory   string `json:"backstory"`
}

// CharacterUpdate is a partial update; nil fields are left unchanged.
type CharacterUpdate struct {
	Name        *string `json:"name,omitempty"`
	Personality *string `json:"personality,omitempty"`
	Backstory   *string `json:"backstory,omitempty"`
}
