package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/richinex/coursebot/model"
)

// storeContract runs the ConversationStore behavior shared by every backend.
func storeContract(t *testing.T, newStore func(opts ...Option) ConversationStore) {
	t.Run("append and history", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		if err := store.Append(ctx, "s1", "What is MCP?", "A protocol."); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		turns, err := store.History(ctx, "s1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(turns))
		}
		if turns[0] != model.UserTurn("What is MCP?") {
			t.Errorf("unexpected first turn %+v", turns[0])
		}
		if turns[1] != model.AssistantTurn("A protocol.") {
			t.Errorf("unexpected second turn %+v", turns[1])
		}
	})

	t.Run("unknown session is empty", func(t *testing.T) {
		store := newStore()
		turns, err := store.History(context.Background(), "nonexistent")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if turns == nil || len(turns) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", turns)
		}
	})

	t.Run("window returns newest exchanges oldest first", func(t *testing.T) {
		store := newStore(WithWindow(2), WithRetain(3))
		ctx := context.Background()

		for i := 1; i <= 5; i++ {
			if err := store.Append(ctx, "s1", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
				t.Fatalf("Append %d failed: %v", i, err)
			}
		}

		turns, err := store.History(ctx, "s1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		want := []string{"q4", "a4", "q5", "a5"}
		if len(turns) != len(want) {
			t.Fatalf("expected %d turns, got %d", len(want), len(turns))
		}
		for i, w := range want {
			if turns[i].Content != w {
				t.Errorf("turn %d: expected %q, got %q", i, w, turns[i].Content)
			}
		}
	})

	t.Run("sessions are independent", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		_ = store.Append(ctx, "a", "qa", "aa")
		_ = store.Append(ctx, "b", "qb", "ab")

		turns, _ := store.History(ctx, "a")
		if len(turns) != 2 || turns[0].Content != "qa" {
			t.Errorf("session a leaked: %+v", turns)
		}
	})

	t.Run("concurrent appends keep exchanges paired", func(t *testing.T) {
		store := newStore(WithWindow(20), WithRetain(20))
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := store.Append(ctx, "shared", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent Append failed: %v", err)
		}

		turns, err := store.History(ctx, "shared")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(turns) != 20 {
			t.Fatalf("expected 20 turns, got %d", len(turns))
		}
		for i := 0; i < len(turns); i += 2 {
			if turns[i].Role != model.RoleUser || turns[i+1].Role != model.RoleAssistant {
				t.Fatalf("exchange %d is not a user/assistant pair", i/2)
			}
			if turns[i].Content[1:] != turns[i+1].Content[1:] {
				t.Errorf("exchange %d interleaved: %q / %q", i/2, turns[i].Content, turns[i+1].Content)
			}
		}
	})
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, func(opts ...Option) ConversationStore {
		return NewMemoryStore(opts...)
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Append(ctx, "s1", "q", "a")

	turns, _ := store.History(ctx, "s1")
	turns[0].Content = "mutated"

	again, _ := store.History(ctx, "s1")
	if again[0].Content != "q" {
		t.Errorf("history was mutated through returned slice")
	}
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Append(ctx, "s1", "q", "a")
	var storeErr *Error
	if !errors.As(err, &storeErr) || storeErr.Op != OpAppend {
		t.Fatalf("expected append store error, got %v", err)
	}
	if store.Sessions() != 0 {
		t.Errorf("expected no sessions after failed append")
	}
}

func TestResolveOptions(t *testing.T) {
	o := resolveOptions([]Option{WithWindow(5), WithRetain(1)})
	if o.Window != 5 || o.Retain != 5 {
		t.Errorf("retain must be raised to window, got %+v", o)
	}

	o = resolveOptions([]Option{WithWindow(0)})
	if o.Window != DefaultWindow || o.Retain != DefaultRetain {
		t.Errorf("expected defaults, got %+v", o)
	}
}

func TestSessionLocksReleaseEntries(t *testing.T) {
	var locks sessionLocks

	unlockA := locks.lock("a")
	unlockB := locks.lock("b")
	if locks.len() != 2 {
		t.Fatalf("expected 2 live locks, got %d", locks.len())
	}
	unlockA()
	unlockB()
	if locks.len() != 0 {
		t.Errorf("expected entries released, got %d", locks.len())
	}
}
