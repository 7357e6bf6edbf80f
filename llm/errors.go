package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a fault from the LLM service.
type ErrorKind string

const (
	KindAuth              ErrorKind = "auth"
	KindRateLimit         ErrorKind = "rate_limit"
	KindTimeout           ErrorKind = "timeout"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindUnavailable       ErrorKind = "unavailable"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindCanceled          ErrorKind = "canceled"
)

// Error is returned by every provider call that fails.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a retry may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// IsKind reports whether err carries an llm Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// NewError creates an Error of the given kind.
func NewError(provider string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// malformed reports a response the provider returned but we could not use.
func malformed(provider, format string, args ...interface{}) *Error {
	return NewError(provider, KindMalformedResponse, fmt.Errorf(format, args...))
}

// classify maps a transport or SDK error to an Error. status is the HTTP
// status the SDK reported, or 0 when none was available.
func classify(provider string, status int, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if status != 0 {
		return NewError(provider, kindForStatus(status), err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(provider, KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewError(provider, KindCanceled, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return NewError(provider, KindMalformedResponse, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewError(provider, KindTimeout, err)
	default:
		return NewError(provider, KindUnavailable, err)
	}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	default:
		return KindMalformedResponse
	}
}

// validateToolCalls rejects tool calls whose arguments are not a JSON object.
func validateToolCalls(provider string, calls []ToolCall) error {
	for i := range calls {
		if calls[i].Name == "" {
			return malformed(provider, "tool call %d has no name", i)
		}
		if len(calls[i].Arguments) == 0 || string(calls[i].Arguments) == "null" {
			calls[i].Arguments = json.RawMessage("{}")
			continue
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(calls[i].Arguments, &obj); err != nil {
			return malformed(provider, "tool call %q has unparseable arguments: %v", calls[i].Name, err)
		}
	}
	return nil
}
