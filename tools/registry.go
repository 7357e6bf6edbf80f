// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Per-query source accumulation hidden behind CollectSources
// - Validation and executor failure wrapping hidden behind Execute

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/richinex/coursebot/internal/logging"
	"github.com/richinex/coursebot/internal/metrics"
	"github.com/richinex/coursebot/model"
)

// Registry holds tool definitions, dispatches execution by name, and
// accumulates the sources emitted while one query runs.
//
// A process keeps one prototype Registry and calls ForQuery for every
// query, so accumulated sources never cross query boundaries.
type Registry struct {
	mu       sync.RWMutex
	tools    []Tool
	index    map[string]int
	executor *Executor
	log      *logging.Logger

	srcMu   sync.Mutex
	sources []model.SourceRecord
}

// NewRegistry creates a new empty tool registry.
func NewRegistry(executor *Executor, log *logging.Logger) *Registry {
	if executor == nil {
		executor = NewExecutor(0)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Registry{
		index:    make(map[string]int),
		executor: executor,
		log:      log.Sub("tools"),
	}
}

// Register adds a new tool to the registry.
// Returns *DuplicateToolError if a tool with the same name already exists.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.index[name]; exists {
		return &DuplicateToolError{Name: name}
	}
	r.index[name] = len(r.tools)
	r.tools = append(r.tools, tool)
	return nil
}

// RegisterFunc registers a plain function under the given definition.
func (r *Registry) RegisterFunc(def Definition, fn Func) error {
	return r.Register(funcTool{def: def, fn: fn})
}

// ForQuery returns a registry sharing this registry's tools with a fresh,
// empty source accumulator. Tools registered on the copy stay local to it.
func (r *Registry) ForQuery() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, len(r.tools))
	copy(tools, r.tools)
	index := make(map[string]int, len(r.index))
	for name, i := range r.index {
		index[name] = i
	}
	return &Registry{
		tools:    tools,
		index:    index,
		executor: r.executor,
		log:      r.log,
	}
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, exists := r.index[name]
	if !exists {
		return nil, false
	}
	return r.tools[i], true
}

// Definitions returns all tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, len(r.tools))
	for i, tool := range r.tools {
		defs[i] = tool.Definition()
	}
	return defs
}

// Execute validates args against the named tool's schema, runs it, and
// merges the result's sources into the accumulator.
//
// Errors are *ToolNotFoundError, *InvalidParametersError, or
// *ToolExecutionError wrapping the executor's failure.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		metrics.RecordToolCall(name, false)
		return Result{}, &ToolNotFoundError{Name: name}
	}

	params, err := tool.Definition().Validate(args)
	if err != nil {
		metrics.RecordToolCall(name, false)
		return Result{}, err
	}

	start := time.Now()
	result, err := r.executor.Run(ctx, tool, params)
	elapsed := time.Since(start)
	metrics.RecordToolCall(name, err == nil)
	if err != nil {
		r.log.Warn().Err(err).Str("tool", name).Dur("elapsed", elapsed).Msg("tool failed")
		return Result{}, &ToolExecutionError{Tool: name, Err: err}
	}

	r.log.Debug().
		Str("tool", name).
		Int("sources", len(result.Sources)).
		Int("output_bytes", len(result.Text)).
		Dur("elapsed", elapsed).
		Msg("tool executed")

	if len(result.Sources) > 0 {
		r.srcMu.Lock()
		r.sources = append(r.sources, result.Sources...)
		r.srcMu.Unlock()
	}
	return result, nil
}

// CollectSources returns all sources accumulated since the last call and
// resets the accumulator.
func (r *Registry) CollectSources() []model.SourceRecord {
	r.srcMu.Lock()
	defer r.srcMu.Unlock()

	collected := r.sources
	r.sources = nil
	if collected == nil {
		return []model.SourceRecord{}
	}
	return collected
}
