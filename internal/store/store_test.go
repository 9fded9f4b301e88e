package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roleplay-chat/core/internal/models"
	"roleplay-chat/core/internal/persistence"
	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, *persistence.MemorySlot) {
	t.Helper()
	slot := persistence.NewMemorySlot()
	log := logger.New(logger.Config{Level: "error", JSON: false})
	s, err := New(context.Background(), slot, log)
	require.NoError(t, err)
	return s, slot
}

func createCharacter(t *testing.T, s *Store, name, personality string) *models.Character {
	t.Helper()
	c, err := s.CreateCharacter(context.Background(), models.CharacterInput{
		Name:        name,
		Personality: personality,
		Backstory:   "Born in a small village, raised by traveling merchants across distant lands.",
	})
	require.NoError(t, err)
	return c
}

func TestCreateCharacterAssignsUniqueIDs(t *testing.T) {
	s, _ := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		c := createCharacter(t, s, "Nova", "friendly")
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestCreateCharacterRejectsEmptyName(t *testing.T) {
	s, slot := newTestStore(t)

	_, err := s.CreateCharacter(context.Background(), models.CharacterInput{Name: "   "})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Empty(t, s.GetAllCharacters())
	assert.Equal(t, 0, slot.SaveCalls())
}

func TestCreateCharacterNormalizesPersonality(t *testing.T) {
	s, _ := newTestStore(t)

	c := createCharacter(t, s, "Nova", "ALIEN OVERLORD")
	assert.Equal(t, models.PersonalityFriendly, c.Personality)

	c = createCharacter(t, s, "Morrigan", "Mysterious")
	assert.Equal(t, models.PersonalityMysterious, c.Personality)
}

func TestUpdateCharacter(t *testing.T) {
	s, _ := newTestStore(t)
	c := createCharacter(t, s, "Nova", "friendly")

	name := "Nova Prime"
	updated, err := s.UpdateCharacter(context.Background(), c.ID, models.CharacterUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Nova Prime", updated.Name)
	assert.Equal(t, c.Personality, updated.Personality)
	assert.True(t, updated.UpdatedAt.After(c.UpdatedAt))

	empty := " "
	_, err = s.UpdateCharacter(context.Background(), c.ID, models.CharacterUpdate{Name: &empty})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = s.UpdateCharacter(context.Background(), "missing", models.CharacterUpdate{Name: &name})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestToggleFavoriteTwiceRestoresState(t *testing.T) {
	s, _ := newTestStore(t)
	c := createCharacter(t, s, "Nova", "friendly")
	require.False(t, c.IsFavorite)

	once, err := s.ToggleFavorite(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, once.IsFavorite)

	twice, err := s.ToggleFavorite(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, twice.IsFavorite)
}

func TestDeleteCharacterCascades(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	nova := createCharacter(t, s, "Nova", "sarcastic")
	mira := createCharacter(t, s, "Mira", "wise")

	for i := 0; i < 3; i++ {
		_, err := s.AddMessage(ctx, nova.ID, "hello nova", true)
		require.NoError(t, err)
	}
	_, err := s.AddMessage(ctx, mira.ID, "hello mira", true)
	require.NoError(t, err)

	require.NoError(t, s.SetActiveCharacter(ctx, nova.ID))

	require.NoError(t, s.DeleteCharacter(ctx, nova.ID))

	assert.Empty(t, s.GetMessages(nova.ID), "cascade must remove the character's messages")
	assert.Len(t, s.GetMessages(mira.ID), 1, "other conversations must be untouched")

	_, ok := s.ActiveCharacter()
	assert.False(t, ok, "active reference must be cleared")

	_, err = s.GetCharacter(nova.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAddMessageTimestampsStrictlyIncrease(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	ids := make(map[string]bool)
	var prev *models.Message
	for i := 0; i < 50; i++ {
		m, err := s.AddMessage(ctx, c.ID, "rapid fire", i%2 == 0)
		require.NoError(t, err)
		assert.False(t, ids[m.ID], "ids must be distinct even within one millisecond")
		ids[m.ID] = true
		if prev != nil {
			assert.True(t, m.Timestamp.After(prev.Timestamp), "timestamps must strictly increase")
		}
		prev = m
	}
}

func TestAddMessageValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	_, err := s.AddMessage(ctx, c.ID, "  ", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = s.AddMessage(ctx, "missing", "hi", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestEditMessage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	m, err := s.AddMessage(ctx, c.ID, "helo", true)
	require.NoError(t, err)

	edited, err := s.EditMessage(ctx, m.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", edited.Text)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)
	assert.True(t, edited.EditedAt.After(m.Timestamp))
	assert.Equal(t, m.Timestamp, edited.Timestamp, "editing must not reorder the conversation")

	_, err = s.EditMessage(ctx, m.ID, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = s.EditMessage(ctx, "missing", "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestDeleteMessage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	m1, err := s.AddMessage(ctx, c.ID, "first", true)
	require.NoError(t, err)
	m2, err := s.AddMessage(ctx, c.ID, "second", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteMessage(ctx, m1.ID))

	remaining := s.GetMessages(c.ID)
	require.Len(t, remaining, 1)
	assert.Equal(t, m2.ID, remaining[0].ID)

	err = s.DeleteMessage(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSearchMessages(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	_, err := s.AddMessage(ctx, c.ID, "The Dragon sleeps", true)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, "under the mountain", false)
	require.NoError(t, err)

	assert.Equal(t, s.GetMessages(c.ID), s.SearchMessages(c.ID, ""),
		"empty query must be a pass-through")

	hits := s.SearchMessages(c.ID, "dragon")
	require.Len(t, hits, 1)
	assert.Equal(t, "The Dragon sleeps", hits[0].Text)

	assert.Empty(t, s.SearchMessages(c.ID, "phoenix"))
}

func TestExportImportRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	nova := createCharacter(t, s, "Nova", "sarcastic")
	_, err := s.AddMessage(ctx, nova.ID, "hi", true)
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, nova.ID, "oh, hello", false)
	require.NoError(t, err)

	blob := s.ExportData()
	assert.Equal(t, models.ExportVersion, blob.Version)
	data, err := json.Marshal(blob)
	require.NoError(t, err)

	fresh, _ := newTestStore(t)
	require.NoError(t, fresh.ImportData(ctx, data))

	assert.Equal(t, s.GetAllCharacters(), fresh.GetAllCharacters())
	assert.Equal(t, s.GetMessages(nova.ID), fresh.GetMessages(nova.ID))

	// The append clock must resume after imported history.
	m, err := fresh.AddMessage(ctx, nova.ID, "post-import", true)
	require.NoError(t, err)
	imported := fresh.GetMessages(nova.ID)
	assert.True(t, m.Timestamp.After(imported[len(imported)-2].Timestamp))
}

func TestImportMalformedLeavesStateUntouched(t *testing.T) {
	s, slot := newTestStore(t)
	ctx := context.Background()

	nova := createCharacter(t, s, "Nova", "friendly")
	_, err := s.AddMessage(ctx, nova.ID, "hi", true)
	require.NoError(t, err)
	savesBefore := slot.SaveCalls()

	for _, payload := range []string{
		`{"bad": true}`,
		`{"characters": 5}`,
		`not json at all`,
		`[]`,
	} {
		err := s.ImportData(ctx, []byte(payload))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeImportFormat), "payload: %s", payload)
	}

	assert.Len(t, s.GetAllCharacters(), 1)
	assert.Len(t, s.GetMessages(nova.ID), 1)
	assert.Equal(t, savesBefore, slot.SaveCalls(), "rejected imports must not write through")
}

func TestPersistenceFailureSurfaced(t *testing.T) {
	s, slot := newTestStore(t)
	ctx := context.Background()
	c := createCharacter(t, s, "Nova", "friendly")

	slot.FailWith(apperrors.NewQuotaExceededError("disk full"))
	_, err := s.AddMessage(ctx, c.ID, "hi", true)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExceeded))

	slot.FailWith(nil)
	_, err = s.AddMessage(ctx, c.ID, "hi again", true)
	assert.NoError(t, err)
}

func TestRehydrateFromSlot(t *testing.T) {
	slot := persistence.NewMemorySlot()
	log := logger.New(logger.Config{Level: "error", JSON: false})
	ctx := context.Background()

	first, err := New(ctx, slot, log)
	require.NoError(t, err)
	nova, err := first.CreateCharacter(ctx, models.CharacterInput{
		Name:        "Nova",
		Personality: "cheerful",
		Backstory:   "An android barista who dreams of opening her own observatory one day soon.",
	})
	require.NoError(t, err)
	_, err = first.AddMessage(ctx, nova.ID, "hello", true)
	require.NoError(t, err)
	require.NoError(t, first.SetActiveCharacter(ctx, nova.ID))

	second, err := New(ctx, slot, log)
	require.NoError(t, err)
	assert.Equal(t, first.GetAllCharacters(), second.GetAllCharacters())
	assert.Equal(t, first.GetMessages(nova.ID), second.GetMessages(nova.ID))

	active, ok := second.ActiveCharacter()
	require.True(t, ok)
	assert.Equal(t, nova.ID, active.ID)

	// Timestamps keep increasing across restarts.
	m, err := second.AddMessage(ctx, nova.ID, "still here", true)
	require.NoError(t, err)
	history := second.GetMessages(nova.ID)
	assert.True(t, m.Timestamp.After(history[0].Timestamp))
}
