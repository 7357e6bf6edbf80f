package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

func searchToolDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "What to search for"},
			},
			"required": []string{"query"},
		},
	}
}

func newAnthropicTestServer(t *testing.T, status int, body string, seen *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicParsesToolUse(t *testing.T) {
	var request map[string]interface{}
	srv := newAnthropicTestServer(t, http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [
			{"type": "text", "text": "Let me look that up."},
			{"type": "tool_use", "id": "toolu_1", "name": "search_course_content", "input": {"query": "mcp"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 12, "output_tokens": 7}
	}`, &request)

	p := NewAnthropicProvider("test-key", "claude-test", 800, 0, option.WithBaseURL(srv.URL))
	resp, err := p.ChatWithTools(context.Background(), []ChatMessage{
		SystemMessage("be brief"),
		UserMessage("what is in the MCP course?"),
	}, []ToolDefinition{searchToolDefinition()})
	if err != nil {
		t.Fatalf("ChatWithTools failed: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Name != "search_course_content" || resp.ToolCalls[0].ID != "toolu_1" {
		t.Errorf("unexpected tool call: %+v", resp.ToolCalls[0])
	}
	if !strings.Contains(string(resp.ToolCalls[0].Arguments), `"mcp"`) {
		t.Errorf("expected arguments to carry query, got %s", resp.ToolCalls[0].Arguments)
	}
	if resp.Content != "Let me look that up." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 19 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}

	if _, ok := request["tools"]; !ok {
		t.Error("expected tools in request")
	}
	if _, ok := request["system"]; !ok {
		t.Error("expected system prompt in request")
	}
}

func TestAnthropicOmitsToolsOnChat(t *testing.T) {
	var request map[string]interface{}
	srv := newAnthropicTestServer(t, http.StatusOK, `{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-test",
		"content": [{"type": "text", "text": "Final answer."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 1}
	}`, &request)

	p := NewAnthropicProvider("test-key", "claude-test", 800, 0, option.WithBaseURL(srv.URL))
	call := ToolCall{ID: "toolu_1", Name: "search_course_content", Arguments: json.RawMessage(`{"query":"x"}`)}
	resp, err := p.Chat(context.Background(), []ChatMessage{
		UserMessage("question"),
		AssistantToolCallMessage("", []ToolCall{call}),
		ToolResultMessage(call, "[MCP - Lesson 1]\ncontent"),
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Final answer." {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if _, ok := request["tools"]; ok {
		t.Error("tools must be omitted on Chat")
	}
	if strings.Contains(mustJSON(t, request["messages"]), "tool_use") {
		t.Error("tool_use blocks must be flattened when no tools are sent")
	}
}

func TestAnthropicStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadRequest, KindInvalidRequest},
	}

	for _, tc := range cases {
		srv := newAnthropicTestServer(t, tc.status, `{"type":"error","error":{"type":"api_error","message":"nope"}}`, nil)
		p := NewAnthropicProvider("sk-ant-secret-12345", "claude-test", 800, 0, option.WithBaseURL(srv.URL))

		_, err := p.ChatWithTools(context.Background(), []ChatMessage{UserMessage("hi")}, nil)
		if !IsKind(err, tc.kind) {
			t.Errorf("status %d: expected kind %s, got %v", tc.status, tc.kind, err)
		}
		if err != nil && strings.Contains(err.Error(), "sk-ant-secret-12345") {
			t.Errorf("status %d: error leaked API key: %v", tc.status, err)
		}
	}
}

func TestOpenAIClassifiesStatusAndMalformedArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.Header.Get("Authorization"), "overloaded") {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "c1", "object": "chat.completion",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "search_course_content", "arguments": "{not json"}}]
			}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	config := openai.DefaultConfig("overloaded")
	config.BaseURL = srv.URL
	p := NewOpenAICompatibleProvider("openai", config, "gpt-test", 800, 0)
	_, err := p.ChatWithTools(context.Background(), []ChatMessage{UserMessage("hi")}, nil)
	if !IsKind(err, KindUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}

	config = openai.DefaultConfig("fine")
	config.BaseURL = srv.URL
	p = NewOpenAICompatibleProvider("openai", config, "gpt-test", 800, 0)
	_, err = p.ChatWithTools(context.Background(), []ChatMessage{UserMessage("hi")}, []ToolDefinition{searchToolDefinition()})
	if !IsKind(err, KindMalformedResponse) {
		t.Errorf("expected malformed_response, got %v", err)
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := classify("x", 0, context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Errorf("expected timeout, got %s", got.Kind)
	}
	if got := classify("x", 0, context.Canceled); got.Kind != KindCanceled {
		t.Errorf("expected canceled, got %s", got.Kind)
	}
	original := NewError("x", KindAuth, errors.New("bad key"))
	if got := classify("y", 0, original); got != original {
		t.Error("classify must keep an existing Error")
	}
}

func TestFlattenToolMessages(t *testing.T) {
	call := ToolCall{ID: "1", Name: "get_course_outline", Arguments: json.RawMessage(`{"course_name":"MCP"}`)}
	out := flattenToolMessages([]ChatMessage{
		SystemMessage("sys"),
		UserMessage("q"),
		AssistantToolCallMessage("checking", []ToolCall{call}),
		ToolResultMessage(call, "Course: MCP"),
	})

	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	for _, msg := range out {
		if msg.Role == RoleTool || len(msg.ToolCalls) > 0 {
			t.Errorf("message not flattened: %+v", msg)
		}
	}
	if !strings.Contains(out[2].Content, "get_course_outline") {
		t.Errorf("expected tool name in flattened call, got %q", out[2].Content)
	}
	if out[3].Role != RoleUser || !strings.Contains(out[3].Content, "Course: MCP") {
		t.Errorf("unexpected flattened result %+v", out[3])
	}
}

type flakyProvider struct {
	errs  []error
	calls int
}

func (f *flakyProvider) Name() string  { return "flaky" }
func (f *flakyProvider) Model() string { return "flaky-1" }
func (f *flakyProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return f.ChatWithTools(ctx, messages, nil)
}
func (f *flakyProvider) ChatWithTools(context.Context, []ChatMessage, []ToolDefinition) (LLMResponse, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return LLMResponse{}, f.errs[f.calls-1]
	}
	return LLMResponse{Content: "ok"}, nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryProviderRetriesRateLimit(t *testing.T) {
	inner := &flakyProvider{errs: []error{
		NewError("flaky", KindRateLimit, errors.New("429")),
		NewError("flaky", KindUnavailable, errors.New("503")),
	}}
	p := WithRetry(inner, DefaultRetryConfig()).(*RetryProvider)
	p.sleep = noSleep

	resp, err := p.Chat(context.Background(), []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Errorf("expected 3 calls and ok, got %d calls and %q", inner.calls, resp.Content)
	}
}

func TestRetryProviderStopsOnAuth(t *testing.T) {
	inner := &flakyProvider{errs: []error{NewError("flaky", KindAuth, errors.New("401"))}}
	p := WithRetry(inner, DefaultRetryConfig()).(*RetryProvider)
	p.sleep = noSleep

	_, err := p.Chat(context.Background(), nil)
	if !IsKind(err, KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected a single attempt, got %d", inner.calls)
	}
}

// stallingProvider blocks until its context ends for the first stalls calls.
type stallingProvider struct {
	flakyProvider
	stalls int
}

func (s *stallingProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	s.calls++
	if s.calls <= s.stalls {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	return LLMResponse{Content: "ok"}, nil
}

func TestRetryProviderRetriesAttemptTimeout(t *testing.T) {
	inner := &stallingProvider{stalls: 1}
	config := DefaultRetryConfig()
	config.AttemptTimeout = 20 * time.Millisecond
	p := WithRetry(inner, config).(*RetryProvider)
	p.sleep = noSleep

	resp, err := p.Chat(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected success after a timed out attempt, got %v", err)
	}
	if resp.Content != "ok" || inner.calls != 2 {
		t.Errorf("expected 2 calls and ok, got %d calls and %q", inner.calls, resp.Content)
	}
}

func TestRetryProviderAttemptTimeoutExhausted(t *testing.T) {
	inner := &stallingProvider{stalls: 5}
	config := DefaultRetryConfig()
	config.AttemptTimeout = 10 * time.Millisecond
	p := WithRetry(inner, config).(*RetryProvider)
	p.sleep = noSleep

	_, err := p.Chat(context.Background(), nil)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if inner.calls != config.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", config.MaxAttempts, inner.calls)
	}
}

func TestRetryProviderStopsWhenCallerCancels(t *testing.T) {
	inner := &stallingProvider{stalls: 5}
	config := DefaultRetryConfig()
	config.AttemptTimeout = time.Second
	p := WithRetry(inner, config).(*RetryProvider)
	p.sleep = noSleep

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected a single attempt, got %d", inner.calls)
	}
}

func TestWithRetryDisabled(t *testing.T) {
	inner := &flakyProvider{}
	if got := WithRetry(inner, RetryConfig{MaxAttempts: 1}); got != Provider(inner) {
		t.Error("expected the provider back unchanged")
	}
	if _, ok := WithRetry(inner, RetryConfig{MaxAttempts: 1, AttemptTimeout: time.Second}).(*RetryProvider); !ok {
		t.Error("expected a wrapper when an attempt timeout is set")
	}
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestParseProviderType(t *testing.T) {
	cases := map[string]ProviderType{
		"":          ProviderAnthropic,
		"Claude":    ProviderAnthropic,
		"gpt":       ProviderOpenAI,
		"deepseek":  ProviderDeepSeek,
		" google ":  ProviderGemini,
		"anthropic": ProviderAnthropic,
	}
	for in, want := range cases {
		got, err := ParseProviderType(in)
		if err != nil {
			t.Fatalf("ParseProviderType(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseProviderType("mistral"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewProviderDefaults(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Type: ProviderAnthropic, APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "anthropic" || p.Model() != ModelAnthropicClaudeSonnet4 {
		t.Errorf("got %s/%s", p.Name(), p.Model())
	}

	p, err = NewProvider(ProviderConfig{Type: ProviderDeepSeek, APIKey: "k", Model: "deepseek-reasoner"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "deepseek-reasoner" {
		t.Errorf("expected explicit model, got %s", p.Model())
	}

	if _, err := NewProvider(ProviderConfig{Type: ProviderOpenAI}); err == nil {
		t.Error("expected error without api key")
	}
}
