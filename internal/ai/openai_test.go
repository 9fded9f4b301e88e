package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roleplay-chat/core/internal/models"
	apperrors "roleplay-chat/core/pkg/errors"
	"roleplay-chat/core/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	log := logger.New(logger.Config{Level: "error", JSON: false})
	return NewClient(ClientConfig{BaseURL: srv.URL, Model: "test-model"}, log)
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCompleteExtractsReply(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionBody("  Oh, it's you.  ")))
	})

	out, err := client.Complete(context.Background(), CompletionRequest{
		APIKey:       "sk-test",
		SystemPrompt: "You are Nova.",
		History: []models.Message{
			{Text: "earlier question", IsUser: true},
			{Text: "earlier answer", IsUser: false},
		},
		UserMessage: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Oh, it's you.", out, "reply text is trimmed")

	assert.Equal(t, "test-model", captured.Model)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "assistant", captured.Messages[2].Role)
	assert.Equal(t, "user", captured.Messages[3].Role)
	assert.Equal(t, "hi", captured.Messages[3].Content)
}

func TestCompleteClassifiesHTTP429(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimited))
}

func TestCompleteClassifiesQuotaErrorBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota","code":"insufficient_quota"}}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRateLimited))
}

func TestCompleteClassifiesOtherFailures(t *testing.T) {
	t.Run("error body", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
		})
		_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeProvider))
	})

	t.Run("malformed response", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		})
		_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeProvider))
	})

	t.Run("no choices", func(t *testing.T) {
		client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		})
		_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeProvider))
	})

	t.Run("unreachable host", func(t *testing.T) {
		log := logger.New(logger.Config{Level: "error", JSON: false})
		client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Model: "test"}, log)
		_, err := client.Complete(context.Background(), CompletionRequest{UserMessage: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeProvider))
	})
}

func TestCompleteHonorsCancelledContext(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("too late")))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Complete(ctx, CompletionRequest{UserMessage: "hi"})
	assert.Error(t, err)
}
