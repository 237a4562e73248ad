package ai

import (
	"context"
	"strings"
	"time"

	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/pkg/metrics"
	"github.com/yektayar/gateway/pkg/utils"
	"go.uber.org/zap"
)

// clientErrorText is the only error text streamed to clients. Upstream
// error bodies stay in the server logs.
const clientErrorText = "Failed to generate response. Please try again."

// Relay streams one AI answer per chat request as an ordered start, chunk*,
// complete|error frame sequence sharing a single message id.
type Relay struct {
	logger     *zap.Logger
	client     *Client
	prompts    *Prompts
	metrics    *metrics.Metrics
	maxHistory int
}

var _ event.AIStreamer = (*Relay)(nil)

// NewRelay creates an AI streaming relay
func NewRelay(logger *zap.Logger, client *Client, prompts *Prompts, m *metrics.Metrics, maxHistory int) *Relay {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	return &Relay{
		logger:     logger.Named("ai.relay"),
		client:     client,
		prompts:    prompts,
		metrics:    m,
		maxHistory: maxHistory,
	}
}

// Stream implements event.AIStreamer. It blocks until the stream reaches a
// terminal state and is expected to run in its own goroutine, one per chat
// request. Frames are pushed through the sink in program order; closing ctx
// (the connection lifetime) stops upstream consumption.
func (r *Relay) Stream(ctx context.Context, sink event.Sink, rec *event.SessionRecord, message string, history []event.ChatMessage) {
	messageID := utils.NewMessageID()
	started := time.Now()

	r.logger.Info("ai chat request",
		zap.String("socket_id", rec.SocketID),
		zap.String("message_id", messageID),
		zap.Int("history_len", len(history)))

	// Started before any upstream contact, so clients can render a
	// thinking indicator without waiting on provider latency.
	if err := sink.Send(ctx, &event.Frame{
		Event: event.EventAIStart,
		Data:  map[string]any{"messageId": messageID},
	}); err != nil {
		r.logger.Warn("connection gone before ai stream started",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		r.finish("cancelled", started)
		return
	}

	messages := r.buildMessages(rec.Lang, message, history)

	var accumulated strings.Builder
	err := r.client.StreamChat(ctx, messages, func(chunk string) error {
		accumulated.WriteString(chunk)
		return sink.Send(ctx, &event.Frame{
			Event: event.EventAIChunk,
			Data:  map[string]any{"messageId": messageID, "chunk": chunk},
		})
	})

	if err != nil {
		r.logger.Error("ai stream failed",
			zap.String("socket_id", rec.SocketID),
			zap.String("message_id", messageID),
			zap.Error(err))

		if ctx.Err() != nil {
			// The connection is gone; there is no one to tell.
			r.finish("cancelled", started)
			return
		}

		// Exactly one error frame, never followed by a complete frame.
		if sendErr := sink.Send(ctx, &event.Frame{
			Event: event.EventAIError,
			Data:  map[string]any{"error": clientErrorText},
		}); sendErr != nil {
			r.logger.Warn("failed to deliver ai error frame",
				zap.String("socket_id", rec.SocketID),
				zap.Error(sendErr))
		}
		r.finish("failed", started)
		return
	}

	if err := sink.Send(ctx, &event.Frame{
		Event: event.EventAIComplete,
		Data:  map[string]any{"messageId": messageID, "fullResponse": accumulated.String()},
	}); err != nil {
		r.logger.Warn("failed to deliver ai complete frame",
			zap.String("socket_id", rec.SocketID),
			zap.Error(err))
		r.finish("cancelled", started)
		return
	}

	r.logger.Info("ai response completed",
		zap.String("socket_id", rec.SocketID),
		zap.String("message_id", messageID),
		zap.Int("response_len", accumulated.Len()))
	r.finish("completed", started)
}

// Generate serves the synchronous, non-streaming chat path. When the
// upstream call fails entirely it returns a canned locale-matched
// supportive reply instead of propagating the error.
func (r *Relay) Generate(ctx context.Context, lang, message string, history []event.ChatMessage) (string, bool) {
	messages := r.buildMessages(lang, message, history)

	reply, err := r.client.Complete(ctx, messages)
	if err != nil {
		r.logger.Error("synchronous ai completion failed, using fallback",
			zap.Error(err))
		return r.prompts.Fallback(lang), true
	}
	return reply, false
}

// buildMessages assembles system prompt, trimmed history (last maxHistory
// turns, oldest first) and the current user message.
func (r *Relay) buildMessages(lang, message string, history []event.ChatMessage) []event.ChatMessage {
	if len(history) > r.maxHistory {
		history = history[len(history)-r.maxHistory:]
	}

	messages := make([]event.ChatMessage, 0, len(history)+2)
	messages = append(messages, event.ChatMessage{Role: "system", Content: r.prompts.SystemPrompt(lang)})
	messages = append(messages, history...)
	messages = append(messages, event.ChatMessage{Role: "user", Content: message})
	return messages
}

func (r *Relay) finish(status string, started time.Time) {
	if r.metrics != nil {
		r.metrics.AIStreamFinished(status, time.Since(started))
	}
}
