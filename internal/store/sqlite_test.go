package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/codebot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "codebot.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendTurn(t *testing.T, s *SQLiteStore, turn domain.Turn) domain.Turn {
	t.Helper()
	if err := s.AppendTurn(context.Background(), &turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	return turn
}

func TestAppendAndListTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := appendTurn(t, s, domain.Turn{ConversationID: 1, Role: domain.RoleUser, Content: "build a counter"})
	second := appendTurn(t, s, domain.Turn{
		ConversationID: 1,
		Role:           domain.RoleAssistant,
		Content:        "here you go",
		Variant:        domain.VariantInfo,
	})

	if first.ID == 0 || second.ID <= first.ID {
		t.Fatalf("ids not assigned in order: %d, %d", first.ID, second.ID)
	}
	if !second.Timestamp.After(first.Timestamp) {
		t.Fatalf("timestamps not increasing: %v, %v", first.Timestamp, second.Timestamp)
	}

	turns, err := s.ListTurns(ctx, 1)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("len(turns) = %d, want 2", len(turns))
	}
	if turns[0].Content != "build a counter" || turns[0].Role != domain.RoleUser {
		t.Errorf("turns[0] = %+v", turns[0])
	}
	if turns[1].Variant != domain.VariantInfo {
		t.Errorf("turns[1].Variant = %q, want %q", turns[1].Variant, domain.VariantInfo)
	}
	if turns[1].Extra != `{"variant":"info"}` {
		t.Errorf("turns[1].Extra = %q", turns[1].Extra)
	}
	if turns[0].Extra != "" {
		t.Errorf("turns[0].Extra = %q, want empty", turns[0].Extra)
	}
}

func TestListTurnsUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	turns, err := s.ListTurns(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if turns == nil || len(turns) != 0 {
		t.Fatalf("ListTurns() = %v, want empty non-nil slice", turns)
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	appendTurn(t, s, domain.Turn{ConversationID: 1, Role: domain.RoleUser, Content: "one"})
	appendTurn(t, s, domain.Turn{ConversationID: 2, Role: domain.RoleUser, Content: "two"})
	appendTurn(t, s, domain.Turn{ConversationID: 1, Role: domain.RoleAssistant, Content: "one reply"})

	turns, err := s.ListTurns(ctx, 2)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "two" {
		t.Fatalf("conversation 2 = %+v", turns)
	}
}

func TestAppendTurnStrictTimestamps(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 50; i++ {
		appendTurn(t, s, domain.Turn{ConversationID: 7, Role: domain.RoleUser, Content: "x"})
	}

	turns, err := s.ListTurns(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	for i := 1; i < len(turns); i++ {
		if !turns[i].Timestamp.After(turns[i-1].Timestamp) {
			t.Fatalf("turn %d timestamp %v not after %v", i, turns[i].Timestamp, turns[i-1].Timestamp)
		}
	}
}

func TestAppendTurnConcurrent(t *testing.T) {
	s := newTestStore(t)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			turn := domain.Turn{ConversationID: 3, Role: domain.RoleUser, Content: "concurrent"}
			errs <- s.AppendTurn(context.Background(), &turn)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	turns, err := s.ListTurns(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != writers {
		t.Fatalf("len(turns) = %d, want %d", len(turns), writers)
	}
	seen := make(map[int64]bool)
	for _, turn := range turns {
		ts := turn.Timestamp.UnixNano()
		if seen[ts] {
			t.Fatalf("duplicate timestamp %d", ts)
		}
		seen[ts] = true
	}
}

func TestAppendTurnRejectsInvalidRole(t *testing.T) {
	s := newTestStore(t)

	turn := domain.Turn{ConversationID: 1, Role: "system", Content: "nope"}
	if err := s.AppendTurn(context.Background(), &turn); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codebot.db")

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	turn := domain.Turn{ConversationID: 1, Role: domain.RoleUser, Content: "persist me"}
	if err := s.AppendTurn(context.Background(), &turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite() reopen error = %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.ListTurns(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListTurns() error = %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "persist me" {
		t.Fatalf("turns = %+v", turns)
	}
}
