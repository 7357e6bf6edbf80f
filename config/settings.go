// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() which handles:
// - .env file loading (a missing file is not an error)
// - Environment variable parsing and defaults via envconfig
// - Provider-specific model lookup and validation

package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings holds all application configuration.
type Settings struct {
	// LLM
	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"anthropic"`
	LLMModel       string        `envconfig:"LLM_MODEL"`
	LLMMaxTokens   uint32        `envconfig:"LLM_MAX_TOKENS" default:"800"`
	LLMTemperature float32       `envconfig:"LLM_TEMPERATURE" default:"0"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	LLMMaxAttempts int           `envconfig:"LLM_MAX_ATTEMPTS" default:"3"`

	// Generation and retrieval
	MaxToolRounds int           `envconfig:"MAX_TOOL_ROUNDS" default:"2"`
	MaxResults    int           `envconfig:"MAX_RESULTS" default:"5"`
	ToolTimeout   time.Duration `envconfig:"TOOL_TIMEOUT" default:"20s"`

	// Conversation history
	MaxHistory          int    `envconfig:"MAX_HISTORY" default:"2"`
	HistoryRetain       int    `envconfig:"HISTORY_RETAIN" default:"10"`
	ConversationBackend string `envconfig:"CONVERSATION_BACKEND" default:"sqlite"`
	ConversationDB      string `envconfig:"CONVERSATION_DB" default:"./data/conversations.db"`
	DynamoDBTable       string `envconfig:"DYNAMODB_TABLE" default:"coursebot-conversations"`

	// Vector index
	IndexPath         string        `envconfig:"INDEX_PATH" default:"./data/index.db"`
	IndexTimeout      time.Duration `envconfig:"INDEX_TIMEOUT" default:"10s"`
	EmbeddingProvider string        `envconfig:"EMBEDDING_PROVIDER" default:"hash"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDim      int           `envconfig:"EMBEDDING_DIM" default:"384"`
	ChunkSize         int           `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap      int           `envconfig:"CHUNK_OVERLAP" default:"100"`

	// Server and logging
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8000"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Conversation backends.
const (
	BackendMemory   = "memory"
	BackendSqlite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Embedding providers.
const (
	EmbeddingHash   = "hash"
	EmbeddingOpenAI = "openai"
	EmbeddingGemini = "gemini"
)

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// Load reads .env (if present) and the environment into Settings.
// A non-empty provider overrides LLM_PROVIDER.
func Load(provider string) (Settings, error) {
	// Missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if provider != "" {
		s.LLMProvider = provider
	}
	if err := s.resolve(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MustLoad is Load that panics on error.
// Use this only when configuration errors should be fatal.
func MustLoad(provider string) Settings {
	settings, err := Load(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// resolve normalizes the provider and fills the model from the provider table.
func (s *Settings) resolve() error {
	s.LLMProvider = normalizeProvider(s.LLMProvider)
	if s.LLMModel != "" {
		return nil
	}
	model, err := ModelFor(s.LLMProvider)
	if err != nil {
		return err
	}
	s.LLMModel = model
	return nil
}

// Validate reports the first setting that is out of range.
func (s Settings) Validate() error {
	if _, err := getProviderInfo(s.LLMProvider); err != nil {
		return err
	}
	switch {
	case s.LLMMaxAttempts < 1:
		return fmt.Errorf("LLM_MAX_ATTEMPTS must be at least 1, got %d", s.LLMMaxAttempts)
	case s.MaxToolRounds < 0:
		return fmt.Errorf("MAX_TOOL_ROUNDS must not be negative, got %d", s.MaxToolRounds)
	case s.MaxResults < 1:
		return fmt.Errorf("MAX_RESULTS must be at least 1, got %d", s.MaxResults)
	case s.MaxHistory < 1:
		return fmt.Errorf("MAX_HISTORY must be at least 1, got %d", s.MaxHistory)
	case s.HistoryRetain < s.MaxHistory:
		return fmt.Errorf("HISTORY_RETAIN (%d) must be at least MAX_HISTORY (%d)", s.HistoryRetain, s.MaxHistory)
	case s.ChunkSize < 1:
		return fmt.Errorf("CHUNK_SIZE must be at least 1, got %d", s.ChunkSize)
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", s.ChunkOverlap)
	case s.EmbeddingDim < 1:
		return fmt.Errorf("EMBEDDING_DIM must be at least 1, got %d", s.EmbeddingDim)
	}
	switch s.ConversationBackend {
	case BackendMemory, BackendSqlite, BackendDynamoDB:
	default:
		return fmt.Errorf("unknown CONVERSATION_BACKEND: %q", s.ConversationBackend)
	}
	switch s.EmbeddingProvider {
	case EmbeddingHash, EmbeddingOpenAI, EmbeddingGemini:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER: %q", s.EmbeddingProvider)
	}
	switch s.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT: %q", s.LogFormat)
	}
	return nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
