package store

import (
	"sort"
	"strings"

	"roleplay-chat/core/internal/models"
)

// SortOrder selects one of the gallery sort modes.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortName      SortOrder = "name"
	SortMostChats SortOrder = "mostChats"
	SortFavorites SortOrder = "favorites"
)

// CharacterFilter describes a gallery query: a substring search, an exact
// personality filter, and a sort order. Zero values mean "no filtering".
type CharacterFilter struct {
	Query       string
	Personality models.Personality
	SortBy      SortOrder
}

// FilteredCharacters applies, in order, the substring search, the personality
// filter, and the sort. Ties in mostChats and favorites break by newest.
func (s *Store) FilteredCharacters(filter CharacterFilter) []models.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := s.messageCounts()

	out := make([]models.Character, 0, len(s.characters))
	needle := strings.ToLower(filter.Query)
	for _, c := range s.characters {
		if needle != "" && !matchesQuery(c, needle) {
			continue
		}
		if filter.Personality != "" && c.Personality != filter.Personality {
			continue
		}
		out = append(out, c)
	}

	switch filter.SortBy {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	case SortMostChats:
		sort.SliceStable(out, func(i, j int) bool {
			ci, cj := counts[out[i].ID], counts[out[j].ID]
			if ci != cj {
				return ci > cj
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case SortFavorites:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].IsFavorite != out[j].IsFavorite {
				return out[i].IsFavorite
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	default: // SortNewest
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

func matchesQuery(c models.Character, needle string) bool {
	return strings.Contains(strings.ToLower(c.Name), needle) ||
		strings.Contains(strings.ToLower(string(c.Personality)), needle) ||
		strings.Contains(strings.ToLower(c.Backstory), needle)
}

// Stats aggregates collection-wide counters for the stats screen.
type Stats struct {
	TotalCharacters   int                        `json:"total_characters"`
	TotalMessages     int                        `json:"total_messages"`
	FavoriteCount     int                        `json:"favorite_count"`
	PersonalityCounts map[models.Personality]int `json:"personality_counts"`
	MessageCounts     map[string]int             `json:"message_counts"`
	MostActive        *models.Character          `json:"most_active,omitempty"`
}

// GetStats computes aggregate statistics. The most-active tie breaks
// lexicographically by character id so the result is deterministic.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := s.messageCounts()

	stats := Stats{
		TotalCharacters:   len(s.characters),
		TotalMessages:     len(s.conversations),
		PersonalityCounts: make(map[models.Personality]int),
		MessageCounts:     counts,
	}

	var mostActive *models.Character
	for i := range s.characters {
		c := &s.characters[i]
		stats.PersonalityCounts[c.Personality]++
		if c.IsFavorite {
			stats.FavoriteCount++
		}
		if mostActive == nil {
			mostActive = c
			continue
		}
		cc, mc := counts[c.ID], counts[mostActive.ID]
		if cc > mc || (cc == mc && c.ID < mostActive.ID) {
			mostActive = c
		}
	}
	if mostActive != nil {
		out := *mostActive
		stats.MostActive = &out
	}
	return stats
}

// CharacterMessageCount returns how many messages a character has.
func (s *Store) CharacterMessageCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageCounts()[id]
}

// messageCounts tallies messages per character. Callers must hold mu.
func (s *Store) messageCounts() map[string]int {
	counts := make(map[string]int, len(s.characters))
	for _, m := range s.conversations {
		counts[m.CharacterID]++
	}
	return counts
}
