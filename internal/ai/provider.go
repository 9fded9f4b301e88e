// Package ai holds the completion-provider contract, an OpenAI-compatible
// client implementation, and the deterministic fallback generator used when
// no provider is reachable.
package ai

import (
	"context"

	"roleplay-chat/core/internal/models"
)

// CompletionRequest carries everything one completion call needs. The
// credential travels with the request because it is resolved per send, not
// per client.
type CompletionRequest struct {
	APIKey       string
	SystemPrompt string
	History      []models.Message
	UserMessage  string
	Temperature  float64
	MaxTokens    int
}

// CompletionProvider generates one in-character reply. Failures are reported
// as AppErrors: rate-limit/quota exhaustion carries the rate-limited code,
// everything else the provider code, so callers can branch on the class
// without knowing the vendor wire format.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
