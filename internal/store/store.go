// Package store is the single source of truth for characters and their
// conversations. All reads are derived views, all writes go through named
// operations, and every mutation is written through to the persistence slot
// before the operation returns.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roleplay-chat/core/internal/models"
	"roleplay-chat/core/internal/persistence"
	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
	"roleplay-chat/core/shared/observability"
)

// Store owns the in-memory collections of characters and messages.
// There is one logical writer; the mutex makes concurrent readers safe and
// guarantees no reader ever observes a partial multi-entity mutation.
type Store struct {
	mu   sync.RWMutex
	slot persistence.Slot
	log  *logger.Logger

	characters        []models.Character
	conversations     []models.Message
	activeCharacterID string

	// lastStamp backs the append clock: every timestamp handed out is
	// strictly later than the previous one, store-wide.
	lastStamp time.Time

	metrics *observability.ChatMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics attaches telemetry instruments to the store.
func WithMetrics(m *observability.ChatMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store rehydrated from the slot's persisted state.
func New(ctx context.Context, slot persistence.Slot, log *logger.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		slot: slot,
		log:  log,
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := slot.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.characters = state.Characters
		s.conversations = state.Conversations
		s.activeCharacterID = state.ActiveCharacterID
		s.lastStamp = latestStamp(state)
		log.Info("store rehydrated",
			"characters", len(s.characters),
			"messages", len(s.conversations),
		)
	}
	return s, nil
}

// latestStamp finds the newest timestamp in a persisted state so the append
// clock resumes strictly after everything already recorded.
func latestStamp(state *models.StoreState) time.Time {
	var last time.Time
	for _, c := range state.Characters {
		if c.CreatedAt.After(last) {
			last = c.CreatedAt
		}
		if c.UpdatedAt.After(last) {
			last = c.UpdatedAt
		}
	}
	for _, m := range state.Conversations {
		if m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last
}

// nextStamp returns a timestamp strictly later than any previously returned,
// even for calls within the same timer resolution. Stamps are UTC wall-clock
// values so they survive a JSON round trip unchanged. Callers must hold mu.
func (s *Store) nextStamp() time.Time {
	now := time.Now().UTC()
	if !now.After(s.lastStamp) {
		now = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = now
	return now
}

// persist writes the full state through to the slot. Callers must hold mu.
// A failed write is surfaced; the in-memory state is kept, so history is not
// lost while the caller decides how to recover.
func (s *Store) persist(ctx context.Context) error {
	state := &models.StoreState{
		Characters:        s.characters,
		Conversations:     s.conversations,
		ActiveCharacterID: s.activeCharacterID,
	}
	if err := s.slot.Save(ctx, state); err != nil {
		s.log.LogError(err, "state write-through failed")
		s.metrics.RecordPersistFailure(ctx)
		if apperrors.HasCode(err, apperrors.CodeQuotaExceeded) || apperrors.HasCode(err, apperrors.CodePersistence) {
			return err
		}
		return apperrors.Wrap(err, apperrors.CodePersistence, "state write-through failed")
	}
	return nil
}

// CreateCharacter appends a new character with a fresh id and timestamps.
func (s *Store) CreateCharacter(ctx context.Context, input models.CharacterInput) (*models.Character, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("character name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nextStamp()
	character := models.Character{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Personality: models.ParsePersonality(input.Personality),
		Backstory:   input.Backstory,
		IsFavorite:  false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.characters = append(s.characters, character)

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	return &character, nil
}

// UpdateCharacter merges the partial update into an existing character and
// refreshes its updated-at stamp.
func (s *Store) UpdateCharacter(ctx context.Context, id string, update models.CharacterUpdate) (*models.Character, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, apperrors.NewValidationError("character name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.characterIndex(id)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("character not found").WithDetails(id)
	}

	c := &s.characters[idx]
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Personality != nil {
		c.Personality = models.ParsePersonality(*update.Personality)
	}
	if update.Backstory != nil {
		c.Backstory = *update.Backstory
	}
	c.UpdatedAt = s.nextStamp()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

// ToggleFavorite flips the favorite flag. Two toggles restore the original
// state.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (*models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.characterIndex(id)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("character not found").WithDetails(id)
	}

	c := &s.characters[idx]
	c.IsFavorite = !c.IsFavorite
	c.UpdatedAt = s.nextStamp()

	if err := s.persist(ctx); err != nil {
		return nil, err
	}
	out := *c
	return &out, nil
}

// DeleteCharacter removes the character and all of its messages in one
// mutation. The active reference is cleared if it pointed at the deleted id.
func (s *Store) DeleteCharacter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.characterIndex(id)
	if idx < 0 {
		return apperrors.NewNotFoundError("character not found").WithDetails(id)
	}

	s.characters = append(s.characters[:idx], s.characters[idx+1:]...)

	kept := s.conversations[:0]
	for _, m := range s.conversations {
		if m.CharacterID != id {
			kept = append(kept, m)
		}
	}
	s.conversations = kept

	if s.activeCharacterID == id {
		s.activeCharacterID = ""
	}

	return s.persist(ctx)
}

// AddMessage appends a message with a fresh id and an append-clock timestamp.
// Existing messages are never mutated.
func (s *Store) AddMessage(ctx context.Context, characterID, text string, isUser bool) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("message text must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.characterIndex(characterID) < 0 {
		return nil, apperrors.NewNotFoundError("character not found").WithDetails(characterID)
	}

	message := models.Message{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		Text:        text,
		IsUser:      isUser,
		Timestamp:   s.nextStamp(),
	}
	s.conversations = append(s.conversations, message)

	if err := s.persist(ctx); err != nil {
		return nil, err
	}

	role := "character"
	if isUser {
		role = "user"
	}
	s.metrics.RecordMessage(ctx, role)

	out := message
	return &out, nil
}

// DeleteMessage removes a single message by id.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.conversations {
		if m.ID == id {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			return s.persist(ctx)
		}
	}
	return apperrors.NewNotFoundError("message not found").WithDetails(id)
}

// EditMessage replaces a message's text and marks it edited.
func (s *Store) EditMessage(ctx context.Context, id, newText string) (*models.Message, error) {
	if strings.TrimSpace(newText) == "" {
		return nil, apperrors.NewValidationError("message text must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == id {
			m := &s.conversations[i]
			m.Text = newText
			m.Edited = true
			editedAt := s.nextStamp()
			m.EditedAt = &editedAt

			if err := s.persist(ctx); err != nil {
				return nil, err
			}
			out := *m
			return &out, nil
		}
	}
	return nil, apperrors.NewNotFoundError("message not found").WithDetails(id)
}

// GetCharacter returns a copy of the character with the given id.
func (s *Store) GetCharacter(id string) (*models.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.characterIndex(id)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError("character not found").WithDetails(id)
	}
	out := s.characters[idx]
	return &out, nil
}

// GetAllCharacters returns all characters in creation order.
func (s *Store) GetAllCharacters() []models.Character {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Character, len(s.characters))
	copy(out, s.characters)
	return out
}

// GetMessages returns the character's messages in insertion order.
func (s *Store) GetMessages(characterID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.conversations {
		if m.CharacterID == characterID {
			out = append(out, m)
		}
	}
	return out
}

// SearchMessages filters the character's messages by a case-insensitive
// substring match. An empty query returns the full conversation.
func (s *Store) SearchMessages(characterID, query string) []models.Message {
	messages := s.GetMessages(characterID)
	if query == "" {
		return messages
	}

	needle := strings.ToLower(query)
	var out []models.Message
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Text), needle) {
			out = append(out, m)
		}
	}
	return out
}

// SetActiveCharacter points the weak active reference at a character.
// An empty id clears it.
func (s *Store) SetActiveCharacter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" && s.characterIndex(id) < 0 {
		return apperrors.NewNotFoundError("character not found").WithDetails(id)
	}
	s.activeCharacterID = id
	return s.persist(ctx)
}

// ActiveCharacter resolves the active reference. The second return is false
// when nothing is active or the reference dangles.
func (s *Store) ActiveCharacter() (*models.Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeCharacterID == "" {
		return nil, false
	}
	idx := s.characterIndex(s.activeCharacterID)
	if idx < 0 {
		return nil, false
	}
	out := s.characters[idx]
	return &out, true
}

// ExportData snapshots the full state into the interchange format.
func (s *Store) ExportData() *models.ExportBlob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	characters := make([]models.Character, len(s.characters))
	copy(characters, s.characters)
	conversations := make([]models.Message, len(s.conversations))
	copy(conversations, s.conversations)

	return &models.ExportBlob{
		Characters:    characters,
		Conversations: conversations,
		ExportedAt:    time.Now().UTC(),
		Version:       models.ExportVersion,
	}
}

// ImportData replaces both collections wholesale from an exported blob.
// Any JSON object with a characters array is accepted; anything else is
// rejected before any state is touched.
func (s *Store) ImportData(ctx context.Context, blob []byte) error {
	var payload struct {
		Characters    *[]models.Character `json:"characters"`
		Conversations []models.Message    `json:"conversations"`
	}
	if err := json.Unmarshal(blob, &payload); err != nil {
		return apperrors.Wrap(err, apperrors.CodeImportFormat, "import payload is not a valid export")
	}
	if payload.Characters == nil {
		return apperrors.NewImportFormatError("import payload has no characters array")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.characters = *payload.Characters
	s.conversations = payload.Conversations
	if s.activeCharacterID != "" && s.characterIndex(s.activeCharacterID) < 0 {
		s.activeCharacterID = ""
	}
	s.lastStamp = latestStamp(&models.StoreState{
		Characters:    s.characters,
		Conversations: s.conversations,
	})

	return s.persist(ctx)
}

// characterIndex finds a character by id. Callers must hold mu.
func (s *Store) characterIndex(id string) int {
	for i := range s.characters {
		if s.characters[i].ID == id {
			return i
		}
	}
	return -1
}
