// Engine builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"fmt"

	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/llm"
)

// Builder provides fluent configuration for creating engines.
// Usage: agent.NewBuilder(client).MaxRounds(3).Build()
type Builder struct {
	client *llm.Client
	config Config
	log    *logging.Logger
}

// NewBuilder creates a builder with the default configuration.
func NewBuilder(client *llm.Client) *Builder {
	return &Builder{client: client, config: DefaultConfig()}
}

// SystemPrompt sets the system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// MaxRounds sets the tool-use round limit.
func (b *Builder) MaxRounds(n int) *Builder {
	b.config.MaxRounds = n
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(log *logging.Logger) *Builder {
	b.log = log
	return b
}

// Build creates the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return New(b.config, b.client, b.log), nil
}
