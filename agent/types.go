// Package agent provides the bounded tool-use generation engine.
//
// Contains the request, answer, and dispatcher types used by the engine.
package agent

import (
	"context"
	"encoding/json"

	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/model"
	"github.com/richinex/coursebot/tools"
)

// Dispatcher exposes tool definitions and executes calls by name.
// *tools.Registry implements it.
type Dispatcher interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, args json.RawMessage) (tools.Result, error)
}

// Request is one query to answer.
type Request struct {
	Query   string
	History []model.Turn
	// Tools may be nil, in which case the model answers without tools.
	Tools Dispatcher
}

// ToolCall is an alias for model.ToolCall for tool call metadata.
type ToolCall = model.ToolCall

// Answer is the outcome of one generation.
type Answer struct {
	Text            string
	Rounds          int
	LLMCalls        int
	Usage           llm.TokenUsage
	ToolCalls       []ToolCall
	Trace           []State
	ExecutionTimeMs uint64
}
