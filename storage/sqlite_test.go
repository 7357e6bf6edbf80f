package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestSqliteStoreContract(t *testing.T) {
	storeContract(t, func(opts ...Option) ConversationStore {
		store, err := NewSqliteInMemory(opts...)
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestSqliteStoreTrimsToRetain(t *testing.T) {
	store, err := NewSqliteInMemory(WithWindow(1), WithRetain(2))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		if err := store.Append(ctx, "s1", q, "a"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = 's1'").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 retained messages, got %d", count)
	}

	turns, _ := store.History(ctx, "s1")
	if len(turns) != 2 || turns[0].Content != "q4" {
		t.Errorf("expected newest exchange only, got %+v", turns)
	}
}

func TestSqliteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "conversations.db")

	store, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := store.Append(context.Background(), "s1", "hello", "hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	store.Close()

	store, err = OpenSqlite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	turns, err := store.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 2 || turns[1].Content != "hi" {
		t.Errorf("unexpected history after reopen: %+v", turns)
	}
}

func TestSqliteStoreSessionsAndDelete(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	_ = store.Append(ctx, "a", "q", "a")
	_ = store.Append(ctx, "b", "q", "a")

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %v", sessions)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	turns, _ := store.History(ctx, "a")
	if len(turns) != 0 {
		t.Errorf("expected deleted session to be empty, got %d turns", len(turns))
	}
}

func TestSqliteStoreClosedReportsStoreError(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	store.Close()

	_, err = store.History(context.Background(), "s1")
	var storeErr *Error
	if !errors.As(err, &storeErr) || storeErr.Op != OpHistory || storeErr.SessionID != "s1" {
		t.Fatalf("expected history store error, got %v", err)
	}

	err = store.Append(context.Background(), "s1", "q", "a")
	if !errors.As(err, &storeErr) || storeErr.Op != OpAppend {
		t.Fatalf("expected append store error, got %v", err)
	}
}
