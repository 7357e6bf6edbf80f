// Package storage provides conversation storage abstraction.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory, SQLite, DynamoDB without API changes
// - Each storage implementation encapsulates its own data structures and protocols

package storage

import (
	"context"
	"fmt"

	"github.com/richinex/coursebot/model"
)

// ConversationStore keeps bounded per-session conversation history.
// Implementations must be safe for concurrent use across sessions.
type ConversationStore interface {
	// History returns the most recent exchanges of a session, oldest first.
	// Returns an empty slice (not nil) if the session doesn't exist.
	History(ctx context.Context, sessionID string) ([]model.Turn, error)

	// Append atomically records one user turn and one assistant turn,
	// creating the session if needed.
	Append(ctx context.Context, sessionID, userText, assistantText string) error
}

// Defaults for history bounds, counted in exchanges (user + assistant turn).
const (
	DefaultWindow = 2
	DefaultRetain = 10
)

// Operations reported in Error.
const (
	OpHistory = "history"
	OpAppend  = "append"
)

// Error is a failure of the conversation store.
type Error struct {
	Op        string
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("session store %s failed for session %q: %v", e.Op, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func historyError(sessionID string, err error) error {
	return &Error{Op: OpHistory, SessionID: sessionID, Err: err}
}

func appendError(sessionID string, err error) error {
	return &Error{Op: OpAppend, SessionID: sessionID, Err: err}
}

// Options bounds how much history a store returns and keeps.
type Options struct {
	// Window is the number of exchanges History returns.
	Window int
	// Retain is the number of exchanges kept per session. Never below Window.
	Retain int
}

// Option configures store bounds.
type Option func(*Options)

// WithWindow sets the history window in exchanges.
func WithWindow(n int) Option {
	return func(o *Options) { o.Window = n }
}

// WithRetain sets the per-session retention in exchanges.
func WithRetain(n int) Option {
	return func(o *Options) { o.Retain = n }
}

func resolveOptions(opts []Option) Options {
	o := Options{Window: DefaultWindow, Retain: DefaultRetain}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Window < 1 {
		o.Window = DefaultWindow
	}
	if o.Retain < o.Window {
		o.Retain = o.Window
	}
	return o
}

// exchangeTurns converts one stored exchange to its two turns.
func exchangeTurns(userText, assistantText string) []model.Turn {
	return []model.Turn{model.UserTurn(userText), model.AssistantTurn(assistantText)}
}
