package ai

import (
	"math/rand"
	"time"

	"roleplay-chat/core/internal/models"
)

// cannedResponses holds the offline reply sets. Five personalities have
// dedicated sets; every other personality resolves to the friendly set.
var cannedResponses = map[models.Personality][]string{
	models.PersonalityFriendly: {
		"That's really interesting! Tell me more about that.",
		"I love talking with you. What else is on your mind?",
		"Oh, that reminds me of something. But first, how are you feeling about it?",
		"You always have the best stories. Go on!",
		"That sounds wonderful. I'm happy you shared it with me.",
	},
	models.PersonalitySarcastic: {
		"Oh wow, groundbreaking stuff. Do go on.",
		"Let me guess, you want my honest opinion? Brave of you.",
		"Fascinating. Truly the highlight of my entire day.",
		"Sure, because that always works out great.",
		"I'd clap, but I'm saving my energy for something surprising.",
	},
	models.PersonalityWise: {
		"There is more to that than first appears. Sit with it a while.",
		"Every path teaches something, even the ones we regret taking.",
		"Consider: is it the situation that troubles you, or your view of it?",
		"Patience. The river carves the canyon not by force but by persistence.",
		"A question well asked is already half answered.",
	},
	models.PersonalityMysterious: {
		"Curious... that is not the first time I have heard those words.",
		"Some things are better left in shadow. But ask, if you dare.",
		"You see the surface. I see what moves beneath it.",
		"The answer you seek has a price. Are you willing to pay it?",
		"Hmm. The night has ears, you know.",
	},
	models.PersonalityCheerful: {
		"That's amazing!! Today just keeps getting better!",
		"Yay! I was hoping you'd say something like that!",
		"Ooh ooh, tell me everything! I can't wait!",
		"You just made my whole day brighter!",
		"This is so exciting! What happens next?",
	},
}

// baseDelays emulates per-personality thinking/typing time. Each send adds a
// random jitter on top of the base.
var baseDelays = map[models.Personality]time.Duration{
	models.PersonalityFriendly:    900 * time.Millisecond,
	models.PersonalitySarcastic:   600 * time.Millisecond,
	models.PersonalityWise:        1800 * time.Millisecond,
	models.PersonalityMysterious:  1500 * time.Millisecond,
	models.PersonalityCheerful:    400 * time.Millisecond,
	models.PersonalitySerious:     1200 * time.Millisecond,
	models.PersonalityRomantic:    1000 * time.Millisecond,
	models.PersonalityAdventurous: 700 * time.Millisecond,
}

const (
	defaultBaseDelay = 900 * time.Millisecond
	maxDelayJitter   = 1200 * time.Millisecond
)

// ResponseSet returns the canned replies for a personality, falling back to
// the friendly set for personalities without a dedicated one.
func ResponseSet(p models.Personality) []string {
	if set, ok := cannedResponses[p]; ok {
		return set
	}
	return cannedResponses[models.PersonalityFriendly]
}

// FallbackGenerator selects offline replies with humanlike pacing. The delay
// scale lets tests and impatient hosts shrink or disable the simulated
// typing time.
type FallbackGenerator struct {
	delayScale float64
}

// NewFallbackGenerator creates a generator with the given delay scale.
// Scale 1 reproduces the reference pacing; 0 disables delays.
func NewFallbackGenerator(delayScale float64) *FallbackGenerator {
	return &FallbackGenerator{delayScale: delayScale}
}

// Reply picks a canned response for the personality and returns it together
// with the jittered typing delay the caller should wait before committing it.
func (g *FallbackGenerator) Reply(p models.Personality) (string, time.Duration) {
	set := ResponseSet(p)
	text := set[rand.Intn(len(set))]

	base, ok := baseDelays[p]
	if !ok {
		base = defaultBaseDelay
	}
	jitter := time.Duration(rand.Int63n(int64(maxDelayJitter)))
	delay := time.Duration(float64(base+jitter) * g.delayScale)
	return text, delay
}
