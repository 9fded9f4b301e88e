package ai

import (
	"fmt"

	"roleplay-chat/core/internal/models"
)

// BuildSystemPrompt renders the character sheet into the provider's system
// prompt.
func BuildSystemPrompt(c *models.Character) string {
	return fmt.Sprintf(
		"You are %s. Your personality traits are: %s. Your backstory: %s Respond in character, being concise and engaging.",
		c.Name,
		c.Personality,
		c.Backstory,
	)
}
