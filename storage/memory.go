// Package storage provides in-memory conversation storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sync"

	"github.com/richinex/coursebot/model"
)

// MemoryStore implements ConversationStore using an in-memory map.
// Data is lost when process terminates.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]model.Turn
	opts     Options
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]model.Turn),
		opts:     resolveOptions(opts),
	}
}

// History implements ConversationStore.
func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, historyError(sessionID, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	if n := s.opts.Window * 2; len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	// Return a copy to avoid external mutations
	copied := make([]model.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// Append implements ConversationStore.
func (s *MemoryStore) Append(ctx context.Context, sessionID, userText, assistantText string) error {
	if err := ctx.Err(); err != nil {
		return appendError(sessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], exchangeTurns(userText, assistantText)...)
	if n := s.opts.Retain * 2; len(turns) > n {
		turns = append([]model.Turn(nil), turns[len(turns)-n:]...)
	}
	s.sessions[sessionID] = turns
	return nil
}

// Sessions returns the number of stored sessions.
func (s *MemoryStore) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify MemoryStore implements ConversationStore
var _ ConversationStore = (*MemoryStore)(nil)
