package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_MODEL", "")
	settings, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLMProvider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", settings.LLMProvider)
	}
	if settings.LLMModel != "claude-sonnet-4-20250514" {
		t.Errorf("expected default anthropic model, got %q", settings.LLMModel)
	}
	if settings.MaxToolRounds != 2 || settings.MaxResults != 5 || settings.MaxHistory != 2 {
		t.Errorf("unexpected generation defaults: %+v", settings)
	}
	if settings.LLMTimeout != 60*time.Second || settings.IndexTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts: llm=%v index=%v", settings.LLMTimeout, settings.IndexTimeout)
	}
	if settings.ConversationBackend != BackendSqlite || settings.EmbeddingProvider != EmbeddingHash {
		t.Errorf("unexpected backends: %q %q", settings.ConversationBackend, settings.EmbeddingProvider)
	}
}

func TestLoadWithAlias(t *testing.T) {
	settings, err := Load("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLMProvider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLMProvider)
	}
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_MODEL", "")
	settings, err := Load("gemini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLMProvider != "gemini" || settings.LLMModel != "gemini-2.5-flash" {
		t.Errorf("expected gemini defaults, got %q %q", settings.LLMProvider, settings.LLMModel)
	}
}

func TestLoadExplicitModel(t *testing.T) {
	t.Setenv("LLM_MODEL", "claude-3-5-sonnet-20241022")
	settings, err := Load("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLMModel != "claude-3-5-sonnet-20241022" {
		t.Errorf("expected LLM_MODEL to win, got %q", settings.LLMModel)
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	if _, err := Load("unknown_provider"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadInvalidEnvVar(t *testing.T) {
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid LLM_MAX_TOKENS")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT", "soon")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid TOOL_TIMEOUT")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"negative rounds", func(s *Settings) { s.MaxToolRounds = -1 }},
		{"zero results", func(s *Settings) { s.MaxResults = 0 }},
		{"zero history", func(s *Settings) { s.MaxHistory = 0 }},
		{"retain below window", func(s *Settings) { s.HistoryRetain = 1; s.MaxHistory = 2 }},
		{"overlap too large", func(s *Settings) { s.ChunkOverlap = s.ChunkSize }},
		{"unknown backend", func(s *Settings) { s.ConversationBackend = "redis" }},
		{"unknown embedder", func(s *Settings) { s.EmbeddingProvider = "cohere" }},
		{"unknown log format", func(s *Settings) { s.LogFormat = "xml" }},
		{"zero attempts", func(s *Settings) { s.LLMMaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			if err := s.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	zero := base
	zero.MaxToolRounds = 0
	if err := zero.Validate(); err != nil {
		t.Errorf("zero rounds should be valid: %v", err)
	}
}

func TestMustLoadPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustLoad("unknown_provider")
}

func TestAPIKeyForValidProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	key, err := APIKeyFor("gpt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := APIKeyFor("openai"); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	if _, err := APIKeyFor("unknown"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	t.Setenv("DEEPSEEK_MODEL", "deepseek-reasoner")
	model, err := ModelFor("deepseek")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "deepseek-reasoner" {
		t.Errorf("expected env model, got %q", model)
	}
}

func TestSupportedProviders(t *testing.T) {
	got := SupportedProviders()
	want := []string{"anthropic", "deepseek", "gemini", "openai"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}
