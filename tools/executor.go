// Tool Executor with timeout and panic containment.
//
// Information Hiding:
// - Deadline handling hidden
// - Panic recovery hidden

package tools

import (
	"context"
	"fmt"
	"time"
)

// DefaultToolTimeout bounds a single tool call when no timeout is configured.
const DefaultToolTimeout = 20 * time.Second

// Executor runs tools with a per-call timeout.
type Executor struct {
	timeout time.Duration
}

// NewExecutor creates an executor. A zero timeout uses DefaultToolTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Executor{timeout: timeout}
}

// Run executes the tool once. A panic inside the tool is returned as an error.
func (e *Executor) Run(ctx context.Context, tool Tool, params Params) (result Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			result = Result{}
			err = fmt.Errorf("panic in tool '%s': %v", tool.Definition().Name, rec)
		}
	}()

	return tool.Execute(ctx, params)
}
