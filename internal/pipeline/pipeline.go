// Package pipeline drives one round of "human sends message, character
// responds": it commits the user message, picks a response source (live
// provider, offline fallback, or an apologetic error reply), paces the reply
// like a thinking human, and commits it strictly after the trigger.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"roleplay-chat/core/internal/ai"
	"roleplay-chat/core/internal/models"
	"roleplay-chat/core/internal/store"
	"roleplay-chat/core/pkg/config"
	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
	"roleplay-chat/core/shared/observability"
)

const (
	// EmptyReplyPlaceholder stands in when the provider answers with no
	// content.
	EmptyReplyPlaceholder = "..."

	// ErrorReplyText is the in-conversation apology for provider failures;
	// the thread itself is the error-reporting channel.
	ErrorReplyText = "I'm sorry, I'm having trouble gathering my thoughts right now. Could you say that again?"

	// errorReplyDelay paces the apology so it doesn't appear instantly.
	errorReplyDelay = 400 * time.Millisecond
)

// KeyResolver resolves a per-user provider credential. The secrets.KeyStore
// satisfies it.
type KeyResolver interface {
	GetStoredKey(ctx context.Context, userID string) (string, error)
}

// Pipeline orchestrates message sends. At most one send per character may be
// in flight; concurrent sends for the same character fail fast with a busy
// error instead of interleaving replies.
type Pipeline struct {
	store    *store.Store
	provider ai.CompletionProvider
	fallback *ai.FallbackGenerator
	keys     KeyResolver
	cfg      *config.Config
	log      *logger.Logger
	metrics  *observability.ChatMetrics

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a pipeline. keys and metrics may be nil; without a resolver
// only the build-time configured key is tried.
func New(
	st *store.Store,
	provider ai.CompletionProvider,
	fallback *ai.FallbackGenerator,
	keys KeyResolver,
	cfg *config.Config,
	log *logger.Logger,
	metrics *observability.ChatMetrics,
) *Pipeline {
	return &Pipeline{
		store:    st,
		provider: provider,
		fallback: fallback,
		keys:     keys,
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
	}
}

// Send commits the user's message, obtains a reply, and commits it as a
// strictly later message. If ctx is cancelled before the reply is committed
// the reply is discarded and nothing further is appended.
func (p *Pipeline) Send(ctx context.Context, characterID, userID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewEmptyMessageError("message text must not be empty")
	}

	character, err := p.store.GetCharacter(characterID)
	if err != nil {
		return nil, err
	}

	if !p.acquire(characterID) {
		return nil, apperrors.NewBusyError("a reply for this character is already in flight")
	}
	defer p.release(characterID)

	// History is captured before the user message is committed; the user
	// message travels separately in the provider request.
	history := p.recentHistory(characterID)

	if _, err := p.store.AddMessage(ctx, characterID, text, true); err != nil {
		return nil, err
	}

	replyText, source := p.generateReply(ctx, character, history, userID, text)

	if err := ctx.Err(); err != nil {
		p.log.WithCharacter(characterID).Info("send cancelled, discarding pending reply")
		return nil, err
	}

	reply, err := p.store.AddMessage(ctx, characterID, replyText, false)
	if err != nil {
		return nil, err
	}
	p.metrics.RecordReply(ctx, source)
	return reply, nil
}

// generateReply picks the response source and produces the reply text.
// Provider failures never escape as errors: rate limiting silently downgrades
// to the fallback generator, anything else becomes the apologetic reply.
func (p *Pipeline) generateReply(ctx context.Context, character *models.Character, history []models.Message, userID, text string) (string, string) {
	key := p.resolveKey(ctx, userID)
	if key == "" {
		return p.fallbackReply(ctx, character), observability.ReplySourceFallback
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Provider.Timeout)
	defer cancel()

	out, err := p.provider.Complete(callCtx, ai.CompletionRequest{
		APIKey:       key,
		SystemPrompt: ai.BuildSystemPrompt(character),
		History:      history,
		UserMessage:  text,
		Temperature:  p.cfg.Provider.Temperature,
		MaxTokens:    p.cfg.Provider.MaxTokens,
	})
	if err == nil {
		if strings.TrimSpace(out) == "" {
			return EmptyReplyPlaceholder, observability.ReplySourceProvider
		}
		return out, observability.ReplySourceProvider
	}

	log := p.log.WithCharacter(character.ID)
	if apperrors.HasCode(err, apperrors.CodeRateLimited) {
		log.Warn("provider rate limited, falling back to offline replies")
		p.metrics.RecordProviderFailure(ctx, "rate_limited")
		return p.fallbackReply(ctx, character), observability.ReplySourceFallback
	}

	log.LogError(err, "provider call failed, replying with apology")
	p.metrics.RecordProviderFailure(ctx, "other")
	p.wait(ctx, errorReplyDelay)
	return ErrorReplyText, observability.ReplySourceError
}

// resolveKey checks the build-time configured key first, then the per-user
// stored key. Empty means fallback generation.
func (p *Pipeline) resolveKey(ctx context.Context, userID string) string {
	if p.cfg.Provider.APIKey != "" {
		return p.cfg.Provider.APIKey
	}
	if p.keys == nil {
		return ""
	}
	key, err := p.keys.GetStoredKey(ctx, userID)
	if err != nil {
		return ""
	}
	return key
}

// fallbackReply picks a canned response and waits out the simulated typing
// delay. The wait ends early on cancellation; the caller discards the reply.
func (p *Pipeline) fallbackReply(ctx context.Context, character *models.Character) string {
	text, delay := p.fallback.Reply(character.Personality)
	p.wait(ctx, delay)
	return text
}

// recentHistory returns the conversation window sent along with provider
// requests.
func (p *Pipeline) recentHistory(characterID string) []models.Message {
	messages := p.store.GetMessages(characterID)
	window := p.cfg.Chat.HistoryWindow
	if window > 0 && len(messages) > window {
		messages = messages[len(messages)-window:]
	}
	return messages
}

func (p *Pipeline) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (p *Pipeline) acquire(characterID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight == nil {
		p.inFlight = make(map[string]struct{})
	}
	if _, busy := p.inFlight[characterID]; busy {
		return false
	}
	p.inFlight[characterID] = struct{}{}
	return true
}

func (p *Pipeline) release(characterID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, characterID)
}
