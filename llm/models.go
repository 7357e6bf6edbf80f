// Package llm provides shared data models for LLM providers.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	ToolName   string     `json:"tool_name,omitempty"`    // For tool result messages
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// AssistantToolCallMessage records the model's request to call tools.
func AssistantToolCallMessage(content string, calls []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage carries the output of one tool call back to the model.
func ToolResultMessage(call ToolCall, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: call.ID, ToolName: call.Name}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall // Tool calls requested by the LLM
	Usage     *TokenUsage
}

// HasToolCalls reports whether the model asked for any tool.
func (r LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// flattenToolMessages rewrites tool-call and tool-result messages as plain
// text so a request without tool definitions stays valid for every provider.
func flattenToolMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			var b strings.Builder
			if msg.Content != "" {
				b.WriteString(msg.Content)
				b.WriteString("\n")
			}
			for _, tc := range msg.ToolCalls {
				fmt.Fprintf(&b, "[called %s with %s]\n", tc.Name, string(tc.Arguments))
			}
			out = append(out, AssistantMessage(strings.TrimSpace(b.String())))
		case msg.Role == RoleTool:
			out = append(out, UserMessage(fmt.Sprintf("Result of %s:\n%s", msg.ToolName, msg.Content)))
		default:
			out = append(out, msg)
		}
	}
	return mergeConsecutive(out)
}

// mergeConsecutive joins adjacent messages with the same role, which
// Anthropic and Gemini reject.
func mergeConsecutive(messages []ChatMessage) []ChatMessage {
	var out []ChatMessage
	for _, msg := range messages {
		n := len(out)
		if n > 0 && out[n-1].Role == msg.Role && msg.Role != RoleSystem &&
			len(out[n-1].ToolCalls) == 0 && len(msg.ToolCalls) == 0 {
			out[n-1].Content = out[n-1].Content + "\n\n" + msg.Content
			continue
		}
		out = append(out, msg)
	}
	return out
}
