// Package tools provides the retrieval tools and the registry that
// dispatches model tool calls to them.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Parameter schemas and validation hidden in Definition
// - Source accumulation hidden inside Registry
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/coursebot/model"
)

// ParamType is the JSON type a tool parameter accepts.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

// Param defines one parameter of a tool.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
}

// Definition describes what a tool does and how to call it.
type Definition struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params"`
}

// Schema renders the parameters as a JSON Schema object.
func (d Definition) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(d.Params))
	required := []string{}
	for _, p := range d.Params {
		properties[p.Name] = map[string]interface{}{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Usage renders the definition for human-readable listings.
func (d Definition) Usage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  %s\n", d.Name, d.Description)
	for _, p := range d.Params {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "  - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
	}
	return b.String()
}

// Params holds validated tool arguments. Integers are stored as int.
type Params map[string]interface{}

// String returns a string parameter and whether it was supplied.
func (p Params) String(name string) (string, bool) {
	v, ok := p[name].(string)
	return v, ok
}

// Int returns an integer parameter and whether it was supplied.
func (p Params) Int(name string) (int, bool) {
	v, ok := p[name].(int)
	return v, ok
}

// Result is the outcome of one tool invocation.
// Text goes back to the model; Sources go to the caller.
type Result struct {
	Text    string
	Sources []model.SourceRecord
}

// TextResult creates a result without sources.
func TextResult(text string) Result {
	return Result{Text: text}
}

// Tool is the interface that all tools must implement.
type Tool interface {
	// Definition returns the tool's name, description, and parameters.
	Definition() Definition

	// Execute runs the tool with validated parameters.
	Execute(ctx context.Context, params Params) (Result, error)
}

// Func adapts a plain function to the Tool interface.
type Func func(ctx context.Context, params Params) (Result, error)

type funcTool struct {
	def Definition
	fn  Func
}

func (t funcTool) Definition() Definition { return t.def }

func (t funcTool) Execute(ctx context.Context, params Params) (Result, error) {
	return t.fn(ctx, params)
}
