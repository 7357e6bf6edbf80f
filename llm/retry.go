// Retry wrapper for providers.
//
// Information Hiding:
// - Backoff schedule hidden
// - Retryable fault classification delegated to Error.Retryable

package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for provider retries.
type RetryConfig struct {
	MaxAttempts       int           // Total attempts including the first
	InitialBackoff    time.Duration // Delay before the second attempt
	MaxBackoff        time.Duration // Upper bound for any delay
	BackoffMultiplier float64       // Growth factor between attempts
	Jitter            bool          // Add up to 25% random delay
	AttemptTimeout    time.Duration // Deadline for each attempt; zero means none
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// RetryProvider retries rate limits, timeouts and unavailability.
// Other faults are returned on the first attempt.
type RetryProvider struct {
	Provider
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a provider with client-side retries.
// MaxAttempts below 2 with no AttemptTimeout returns the provider unchanged.
func WithRetry(p Provider, config RetryConfig) Provider {
	if config.MaxAttempts < 2 && config.AttemptTimeout <= 0 {
		return p
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = 1
	}
	return &RetryProvider{Provider: p, config: config, sleep: sleepContext}
}

// Chat retries the wrapped provider's Chat.
func (r *RetryProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return r.do(ctx, func(ctx context.Context) (LLMResponse, error) {
		return r.Provider.Chat(ctx, messages)
	})
}

// ChatWithTools retries the wrapped provider's ChatWithTools.
func (r *RetryProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return r.do(ctx, func(ctx context.Context) (LLMResponse, error) {
		return r.Provider.ChatWithTools(ctx, messages, tools)
	})
}

func (r *RetryProvider) do(ctx context.Context, fn func(context.Context) (LLMResponse, error)) (LLMResponse, error) {
	backoff := r.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		resp, err := r.attempt(ctx, fn)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return LLMResponse{}, err
		}

		var llmErr *Error
		if !errors.As(err, &llmErr) || !llmErr.Retryable() {
			return LLMResponse{}, err
		}
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		delay := backoff
		if r.config.Jitter && delay > 0 {
			delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))
		}
		if r.config.MaxBackoff > 0 && delay > r.config.MaxBackoff {
			delay = r.config.MaxBackoff
		}
		if err := r.sleep(ctx, delay); err != nil {
			return LLMResponse{}, lastErr
		}

		backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
	}

	return LLMResponse{}, lastErr
}

// attempt runs fn under the per-attempt deadline. A deadline hit on the
// attempt alone is reported as a timeout.
func (r *RetryProvider) attempt(ctx context.Context, fn func(context.Context) (LLMResponse, error)) (LLMResponse, error) {
	if r.config.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	resp, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
		return LLMResponse{}, classify(r.Name(), 0, err)
	}
	return resp, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Verify RetryProvider implements Provider
var _ Provider = (*RetryProvider)(nil)
