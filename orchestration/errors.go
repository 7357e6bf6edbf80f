package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/richinex/coursebot/llm"
	"github.com/richinex/coursebot/storage"
	"github.com/richinex/coursebot/tools"
	"github.com/richinex/coursebot/vectorindex"
)

// Components named in Error.
const (
	ComponentOrchestrator     = "orchestrator"
	ComponentSessionStore     = "session_store"
	ComponentToolRegistry     = "tool_registry"
	ComponentRetrievalTool    = "retrieval_tool"
	ComponentVectorIndex      = "vector_index"
	ComponentLLMService       = "llm_service"
	ComponentGenerationEngine = "generation_engine"
)

// Kinds that are not carried over from a component's own error type.
const (
	KindInvalidQuery      = "invalid_query"
	KindReadFailed        = "read_failed"
	KindWriteFailed       = "write_failed"
	KindToolNotFound      = "tool_not_found"
	KindInvalidParameters = "invalid_parameters"
	KindToolExecution     = "tool_execution"
	KindTimeout           = "timeout"
	KindCanceled          = "canceled"
	KindInternal          = "internal"
)

// Error is the single failure shape returned by Answer.
// Message is never empty and names the stage that failed.
type Error struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Component, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps a failure outside Answer, such as a catalog listing, to
// the same triple Answer reports.
func Classify(stage string, err error) *Error {
	return classify(stage, err)
}

// classify maps an error from any stage to the (kind, message, component)
// triple. Cancellation is reported as the engine's whichever call saw it.
// Otherwise the most specific origin in the chain wins: an index fault
// surfaced through a tool is reported as the index's.
func classify(stage string, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	wrap := func(component, kind string) *Error {
		return &Error{
			Kind:      kind,
			Message:   fmt.Sprintf("%s failed: %v", stage, err),
			Component: component,
			Err:       err,
		}
	}

	var (
		indexErr    *vectorindex.Error
		llmErr      *llm.Error
		storeErr    *storage.Error
		notFoundErr *tools.ToolNotFoundError
		paramsErr   *tools.InvalidParametersError
		execErr     *tools.ToolExecutionError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return wrap(ComponentGenerationEngine, KindCanceled)
	case errors.As(err, &indexErr):
		return wrap(ComponentVectorIndex, string(indexErr.Kind))
	case errors.As(err, &llmErr):
		return wrap(ComponentLLMService, string(llmErr.Kind))
	case errors.As(err, &storeErr):
		if storeErr.Op == storage.OpAppend {
			return wrap(ComponentSessionStore, KindWriteFailed)
		}
		return wrap(ComponentSessionStore, KindReadFailed)
	case errors.As(err, &notFoundErr):
		return wrap(ComponentToolRegistry, KindToolNotFound)
	case errors.As(err, &paramsErr):
		return wrap(ComponentToolRegistry, KindInvalidParameters)
	case errors.As(err, &execErr):
		if errors.Is(err, context.DeadlineExceeded) {
			return wrap(ComponentRetrievalTool, KindTimeout)
		}
		return wrap(ComponentRetrievalTool, KindToolExecution)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(ComponentGenerationEngine, KindTimeout)
	default:
		return wrap(ComponentGenerationEngine, KindInternal)
	}
}
