package tools

import (
	"errors"
	"fmt"
)

// ErrDuplicateTool is matched by DuplicateToolError via errors.Is.
var ErrDuplicateTool = errors.New("tool already registered")

// DuplicateToolError is returned when a name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool '%s' already registered", e.Name)
}

func (e *DuplicateToolError) Is(target error) bool { return target == ErrDuplicateTool }

// ToolNotFoundError is returned when the model calls an unknown tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool '%s' not found", e.Name)
}

// InvalidParametersError names the parameter that failed validation.
type InvalidParametersError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *InvalidParametersError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid parameters for '%s': %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("invalid parameter '%s' for '%s': %s", e.Field, e.Tool, e.Reason)
}

// ToolExecutionError wraps a failure raised by a tool's executor.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
