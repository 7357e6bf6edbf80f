// Engine configuration types.
//
// Information Hiding:
// - Configuration validation logic hidden
// - Default values hidden

package agent

import "fmt"

// DefaultMaxRounds is the number of tool rounds before the forced final answer.
const DefaultMaxRounds = 2

// Config holds engine configuration.
type Config struct {
	// SystemPrompt guides the model's behavior.
	SystemPrompt string

	// MaxRounds bounds the tool-use rounds per query. After the last round
	// the model is called once more without tools.
	MaxRounds int
}

// DefaultConfig returns the course assistant configuration.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		MaxRounds:    DefaultMaxRounds,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxRounds < 0 {
		return fmt.Errorf("max rounds must not be negative, got %d", c.MaxRounds)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("system prompt must not be empty")
	}
	return nil
}
