package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/yektayar/gateway/internal/common/config"
	"github.com/yektayar/gateway/internal/common/errorx"
	"github.com/yektayar/gateway/internal/gateway/event"
	"go.uber.org/zap"
)

// Client talks to the upstream OpenAI-compatible chat-completion provider.
type Client struct {
	logger     *zap.Logger
	cfg        config.AIConfig
	httpClient *http.Client
}

// NewClient creates an upstream AI provider client
func NewClient(logger *zap.Logger, cfg config.AIConfig) *Client {
	return &Client{
		logger: logger.Named("ai.client"),
		cfg:    cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// chatRequest is the upstream chat-completion request body.
type chatRequest struct {
	Model    string              `json:"model"`
	Messages []event.ChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Seed     int                 `json:"seed"`
}

func (c *Client) newChatRequest(ctx context.Context, messages []event.ChatMessage, stream bool) (*http.Request, error) {
	payload := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
		// Randomized seed keeps sampling non-deterministic but reproducible
		// per request when the provider logs it.
		Seed: rand.IntN(1000000),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// StreamChat opens a streaming chat completion and invokes onChunk for each
// decoded content delta, in arrival order. The upstream [DONE] marker is
// swallowed. Malformed SSE fragments are skipped without aborting the
// stream; upstream is allowed to emit partial or noisy lines.
func (c *Client) StreamChat(ctx context.Context, messages []event.ChatMessage, onChunk func(chunk string) error) error {
	req, err := c.newChatRequest(ctx, messages, true)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errorx.Wrap(errorx.CategoryUpstream, "upstream stream failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("upstream returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return errorx.Newf(errorx.CategoryUpstream, "upstream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	buffer := make([]byte, 0, 64*1024)
	scanner.Buffer(buffer, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		if !gjson.Valid(data) {
			c.logger.Debug("skipping malformed SSE fragment",
				zap.Int("len", len(data)))
			continue
		}

		content := gjson.Get(data, "choices.0.delta.content")
		if !content.Exists() || content.String() == "" {
			continue
		}
		if err := onChunk(content.String()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errorx.Wrap(errorx.CategoryUpstream, "upstream stream failed", err)
	}
	return nil
}

// Complete performs a synchronous chat completion and returns the reply text.
func (c *Client) Complete(ctx context.Context, messages []event.ChatMessage) (string, error) {
	req, err := c.newChatRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errorx.Wrap(errorx.CategoryUpstream, "upstream completion failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errorx.Wrap(errorx.CategoryUpstream, "upstream completion failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("upstream returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body[:min(len(body), 4096)]))
		return "", errorx.Newf(errorx.CategoryUpstream, "upstream returned status %d", resp.StatusCode)
	}

	// Providers are inconsistent about the response envelope; accept the
	// OpenAI shape first and the simple text shapes after it.
	for _, path := range []string{"choices.0.message.content", "response", "text"} {
		if res := gjson.GetBytes(body, path); res.Exists() && res.String() != "" {
			return strings.TrimSpace(res.String()), nil
		}
	}

	text := strings.TrimSpace(string(body))
	if text != "" && !gjson.ValidBytes(body) {
		// Plain-text reply
		return text, nil
	}
	return "", errorx.New(errorx.CategoryUpstream, "upstream returned an empty completion")
}

// Healthy probes the upstream provider with a minimal completion request.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.Complete(ctx, []event.ChatMessage{{Role: "user", Content: "Hello"}})
	if err != nil {
		c.logger.Debug("upstream health probe failed", zap.Error(err))
		return false
	}
	return true
}
