package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
)

// ClientConfig configures the OpenAI-compatible completion client.
type ClientConfig struct {
	BaseURL        string
	Model          string
	RateLimit      rate.Limit
	RateLimitBurst int
}

// Client calls an OpenAI-compatible chat-completions endpoint. Outbound
// requests pass through a client-side limiter so a chatty host cannot burn
// the account's quota.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a completion client. Timeouts are driven by the caller's
// context, which the pipeline derives from the configured provider timeout.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete issues one chat-completion request and extracts the reply text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider, "request cancelled while throttled")
	}

	messages := []chatMessage{
		{Role: "system", Content: req.SystemPrompt},
	}
	for _, msg := range req.History {
		role := "assistant"
		if msg.IsUser {
			role = "user"
		}
		messages = append(messages, chatMessage{Role: role, Content: msg.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserMessage})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider, "failed to encode completion request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider, "failed to create completion request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	c.log.Debug("completion request", "model", c.model, "history", len(req.History))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider, "completion request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider, "failed to read completion response")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apperrors.NewRateLimitedError("provider rate limit exceeded")
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeProvider,
			fmt.Sprintf("malformed completion response (status %d)", resp.StatusCode))
	}

	if parsed.Error != nil {
		if isQuotaError(parsed.Error.Type, parsed.Error.Code, parsed.Error.Message) {
			return "", apperrors.NewRateLimitedError(parsed.Error.Message)
		}
		return "", apperrors.NewProviderError(parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewProviderError(fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.NewProviderError("provider returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// isQuotaError recognizes the quota/rate-limit signals vendors put in error
// payloads, e.g. OpenAI's insufficient_quota code.
func isQuotaError(errType, errCode, errMessage string) bool {
	for _, s := range []string{errType, errCode, errMessage} {
		lowered := strings.ToLower(s)
		if strings.Contains(lowered, "quota") || strings.Contains(lowered, "rate limit") || strings.Contains(lowered, "rate_limit") {
			return true
		}
	}
	return false
}
