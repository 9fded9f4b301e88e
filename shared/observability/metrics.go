package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Reply sources recorded on the chat_replies_total counter.
const (
	ReplySourceProvider = "provider"
	ReplySourceFallback = "fallback"
	ReplySourceError    = "error"
)

// ChatMetrics holds the counters the store and pipeline record into.
// A nil *ChatMetrics is valid and records nothing, so telemetry stays
// optional for hosts that run without an exporter.
type ChatMetrics struct {
	messages         metric.Int64Counter
	replies          metric.Int64Counter
	providerFailures metric.Int64Counter
	persistFailures  metric.Int64Counter
}

// NewChatMetrics registers the chat instruments on the global meter provider.
func NewChatMetrics() (*ChatMetrics, error) {
	meter := otel.Meter("roleplay-chat/core")

	messages, err := meter.Int64Counter("chat_messages_total",
		metric.WithDescription("Messages appended to the store, by author role"))
	if err != nil {
		return nil, err
	}
	replies, err := meter.Int64Counter("chat_replies_total",
		metric.WithDescription("Replies committed by the pipeline, by source"))
	if err != nil {
		return nil, err
	}
	providerFailures, err := meter.Int64Counter("chat_provider_failures_total",
		metric.WithDescription("Completion provider failures, by kind"))
	if err != nil {
		return nil, err
	}
	persistFailures, err := meter.Int64Counter("chat_persist_failures_total",
		metric.WithDescription("State write-through failures"))
	if err != nil {
		return nil, err
	}

	return &ChatMetrics{
		messages:         messages,
		replies:          replies,
		providerFailures: providerFailures,
		persistFailures:  persistFailures,
	}, nil
}

// RecordMessage counts an appended message by author role.
func (m *ChatMetrics) RecordMessage(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordReply counts a committed reply by its source.
func (m *ChatMetrics) RecordReply(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.replies.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordProviderFailure counts a provider failure by kind.
func (m *ChatMetrics) RecordProviderFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.providerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordPersistFailure counts a failed state write-through.
func (m *ChatMetrics) RecordPersistFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.persistFailures.Add(ctx, 1)
}
