// Provider construction from resolved settings.
//
// API keys and model overrides are resolved by the config package; this
// file only maps a ProviderConfig onto the matching SDK-backed provider.

package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderType identifies a supported LLM service.
type ProviderType int

const (
	ProviderAnthropic ProviderType = iota
	ProviderOpenAI
	ProviderDeepSeek
	ProviderGemini
)

// Generation defaults for grounded course answers.
const (
	DefaultMaxTokens   uint32  = 800
	DefaultTemperature float32 = 0
)

// Model identifiers used as defaults.
const (
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
	ModelOpenAIGPT4o            = "gpt-4o"
	ModelDeepSeekChat           = "deepseek-chat"
	ModelGeminiFlash25          = "gemini-2.5-flash"
)

var providerNames = map[ProviderType]string{
	ProviderAnthropic: "anthropic",
	ProviderOpenAI:    "openai",
	ProviderDeepSeek:  "deepseek",
	ProviderGemini:    "gemini",
}

var defaultModels = map[ProviderType]string{
	ProviderAnthropic: ModelAnthropicClaudeSonnet4,
	ProviderOpenAI:    ModelOpenAIGPT4o,
	ProviderDeepSeek:  ModelDeepSeekChat,
	ProviderGemini:    ModelGeminiFlash25,
}

func (p ProviderType) String() string {
	if name, ok := providerNames[p]; ok {
		return name
	}
	return "unknown"
}

// DefaultModel is the model used when ProviderConfig.Model is empty.
func (p ProviderType) DefaultModel() string {
	return defaultModels[p]
}

// ParseProviderType accepts canonical names and the aliases claude, gpt
// and google. An empty string selects Anthropic.
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude", "":
		return ProviderAnthropic, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	}
	return 0, fmt.Errorf("unknown provider: %s", s)
}

// ProviderConfig is everything needed to construct a provider.
// Zero MaxTokens and empty Model fall back to the defaults.
type ProviderConfig struct {
	Type        ProviderType
	APIKey      string
	Model       string
	MaxTokens   uint32
	Temperature float32
}

// NewProvider builds the SDK-backed provider for cfg.Type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Type.DefaultModel()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	switch cfg.Type {
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), nil
	}
	return nil, fmt.Errorf("unknown provider type: %v", cfg.Type)
}
