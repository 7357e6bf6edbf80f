// LLMClient - wraps a provider with per-call timeouts, logging and metrics.

package llm

import (
	"context"
	"time"

	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/internal/metrics"
)

// Client wraps a Provider. Every call gets its own timeout.
type Client struct {
	provider Provider
	timeout  time.Duration
	log      *logging.Logger
}

// NewClient creates a new LLM client from a provider.
// A zero timeout leaves deadlines to the caller's context.
func NewClient(provider Provider, timeout time.Duration, log *logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{provider: provider, timeout: timeout, log: log.Sub("llm")}
}

// Chat sends messages without tool definitions.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return c.call(ctx, len(messages), 0, func(ctx context.Context) (LLMResponse, error) {
		return c.provider.Chat(ctx, messages)
	})
}

// ChatWithTools sends messages with tool definitions.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return c.call(ctx, len(messages), len(tools), func(ctx context.Context) (LLMResponse, error) {
		return c.provider.ChatWithTools(ctx, messages, tools)
	})
}

func (c *Client) call(ctx context.Context, messages, tools int, fn func(context.Context) (LLMResponse, error)) (LLMResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := fn(ctx)
	elapsed := time.Since(start)
	metrics.RecordLLMRequest(c.provider.Name(), err == nil, elapsed)

	if err != nil {
		err = classify(c.provider.Name(), 0, err)
		c.log.Warn().
			Err(err).
			Str("provider", c.provider.Name()).
			Dur("elapsed", elapsed).
			Msg("llm request failed")
		return LLMResponse{}, err
	}

	c.log.Debug().
		Str("provider", c.provider.Name()).
		Str("model", c.provider.Model()).
		Int("messages", messages).
		Int("tools", tools).
		Int("tool_calls", len(resp.ToolCalls)).
		Dur("elapsed", elapsed).
		Msg("llm request complete")
	return resp, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
