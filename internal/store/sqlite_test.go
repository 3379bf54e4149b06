// ABOUTME: Tests for the SQLite-backed Store implementation
// ABOUTME: Covers conversations, bindings, messages, and the update cursor

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	profile := &Profile{
		ClientID:  42,
		Username:  "someone",
		FirstName: "Some",
		LastName:  "One",
	}
	if err := s.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("failed to upsert profile: %v", err)
	}

	got, err := s.GetProfile(ctx, 42)
	if err != nil {
		t.Fatalf("failed to get profile: %v", err)
	}
	if got.Username != "someone" || got.FirstName != "Some" {
		t.Errorf("unexpected profile: %+v", got)
	}
	created := got.CreatedAt

	profile.Username = "renamed"
	if err := s.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("failed to update profile: %v", err)
	}
	got, err = s.GetProfile(ctx, 42)
	if err != nil {
		t.Fatalf("failed to get updated profile: %v", err)
	}
	if got.Username != "renamed" {
		t.Errorf("expected username renamed, got %q", got.Username)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at changed on update: %v != %v", got.CreatedAt, created)
	}
}

func TestStartConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}
	if !conv.Active {
		t.Error("new conversation should be active")
	}
	if conv.State != StateCategory {
		t.Errorf("expected state %s, got %s", StateCategory, conv.State)
	}

	active, err := s.GetActiveConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get active conversation: %v", err)
	}
	if active.ID != conv.ID {
		t.Errorf("expected active conversation %d, got %d", conv.ID, active.ID)
	}
}

func TestStartConversation_DeactivatesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start first conversation: %v", err)
	}
	second, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start second conversation: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("second conversation reused first conversation's id")
	}

	active, err := s.GetActiveConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get active conversation: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("expected active conversation %d, got %d", second.ID, active.ID)
	}

	old, err := s.GetConversation(ctx, 100, first.ID)
	if err != nil {
		t.Fatalf("failed to get first conversation: %v", err)
	}
	if old.Active {
		t.Error("first conversation should be inactive")
	}
	if old.ClosedAt == nil {
		t.Error("first conversation should have closed_at set")
	}
}

func TestGetActiveConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetActiveConversation(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}

	state := StateName
	key := "school"
	label := "School trouble"
	err = s.UpdateConversation(ctx, 100, conv.ID, ConversationPatch{
		State:         &state,
		CategoryKey:   &key,
		CategoryLabel: &label,
	})
	if err != nil {
		t.Fatalf("failed to update conversation: %v", err)
	}

	got, err := s.GetConversation(ctx, 100, conv.ID)
	if err != nil {
		t.Fatalf("failed to get conversation: %v", err)
	}
	if got.State != StateName {
		t.Errorf("expected state %s, got %s", StateName, got.State)
	}
	if got.CategoryKey != "school" || got.CategoryLabel != "School trouble" {
		t.Errorf("unexpected category: %q %q", got.CategoryKey, got.CategoryLabel)
	}

	a1 := "slept badly"
	a2 := "argued at home"
	if err := s.UpdateConversation(ctx, 100, conv.ID, ConversationPatch{MoodAnswer1: &a1, MoodAnswer2: &a2}); err != nil {
		t.Fatalf("failed to update answers: %v", err)
	}
	got, err = s.GetConversation(ctx, 100, conv.ID)
	if err != nil {
		t.Fatalf("failed to get conversation: %v", err)
	}
	if got.MoodAnswers[0] != a1 || got.MoodAnswers[1] != a2 || got.MoodAnswers[2] != "" {
		t.Errorf("unexpected mood answers: %v", got.MoodAnswers)
	}
}

func TestUpdateConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	state := StateChat
	err := s.UpdateConversation(context.Background(), 100, 12345, ConversationPatch{State: &state})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCloseConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}
	if err := s.CloseConversation(ctx, 100, conv.ID); err != nil {
		t.Fatalf("failed to close conversation: %v", err)
	}

	if _, err := s.GetActiveConversation(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}
	got, err := s.GetConversation(ctx, 100, conv.ID)
	if err != nil {
		t.Fatalf("failed to get closed conversation: %v", err)
	}
	if got.Active || got.ClosedAt == nil {
		t.Errorf("conversation not closed: active=%v closedAt=%v", got.Active, got.ClosedAt)
	}
}

func TestBindings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetBinding(ctx, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetBinding(ctx, 100, 7, "client_100"); err != nil {
		t.Fatalf("failed to set binding: %v", err)
	}
	b, err := s.GetBinding(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get binding: %v", err)
	}
	if b.ThreadID != 7 || b.Title != "client_100" {
		t.Errorf("unexpected binding: %+v", b)
	}

	clientID, err := s.GetClientIDByThread(ctx, 7)
	if err != nil {
		t.Fatalf("failed to resolve thread: %v", err)
	}
	if clientID != 100 {
		t.Errorf("expected client 100, got %d", clientID)
	}
}

func TestSetBinding_Replace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetBinding(ctx, 100, 7, "client_100"); err != nil {
		t.Fatalf("failed to set binding: %v", err)
	}
	if err := s.SetBinding(ctx, 100, 9, "client_100"); err != nil {
		t.Fatalf("failed to replace binding: %v", err)
	}

	b, err := s.GetBinding(ctx, 100)
	if err != nil {
		t.Fatalf("failed to get binding: %v", err)
	}
	if b.ThreadID != 9 {
		t.Errorf("expected thread 9 after rebind, got %d", b.ThreadID)
	}
	if _, err := s.GetClientIDByThread(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("stale thread still resolves: %v", err)
	}
	clientID, err := s.GetClientIDByThread(ctx, 9)
	if err != nil {
		t.Fatalf("failed to resolve new thread: %v", err)
	}
	if clientID != 100 {
		t.Errorf("expected client 100, got %d", clientID)
	}
}

func TestLogAndListMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.StartConversation(ctx, 100)
	if err != nil {
		t.Fatalf("failed to start conversation: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, text := range []string{"first", "second", "third"} {
		rec := &MessageRecord{
			ID:             uuid.New().String(),
			ClientID:       100,
			ConversationID: conv.ID,
			Role:           RoleClient,
			Direction:      DirectionIn,
			Kind:           "text",
			Text:           text,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.LogMessage(ctx, rec); err != nil {
			t.Fatalf("failed to log message %d: %v", i, err)
		}
	}

	msgs, err := s.ListMessages(ctx, 100, conv.ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Text != want {
			t.Errorf("message %d: expected %q, got %q", i, want, msgs[i].Text)
		}
	}
}

func TestCursor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetCursor(ctx)
	if err != nil {
		t.Fatalf("failed to get cursor: %v", err)
	}
	if ok {
		t.Error("expected no cursor in a fresh store")
	}

	if err := s.SetCursor(ctx, 12345); err != nil {
		t.Fatalf("failed to set cursor: %v", err)
	}
	value, ok, err := s.GetCursor(ctx)
	if err != nil {
		t.Fatalf("failed to get cursor: %v", err)
	}
	if !ok || value != 12345 {
		t.Errorf("expected cursor 12345, got %d (ok=%v)", value, ok)
	}

	if err := s.SetCursor(ctx, 12350); err != nil {
		t.Fatalf("failed to advance cursor: %v", err)
	}
	value, _, err = s.GetCursor(ctx)
	if err != nil {
		t.Fatalf("failed to get advanced cursor: %v", err)
	}
	if value != 12350 {
		t.Errorf("expected cursor 12350, got %d", value)
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := s1.SetCursor(context.Background(), 7); err != nil {
		t.Fatalf("failed to set cursor: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s2.Close()

	value, ok, err := s2.GetCursor(context.Background())
	if err != nil {
		t.Fatalf("failed to get cursor after reopen: %v", err)
	}
	if !ok || value != 7 {
		t.Errorf("expected cursor 7 after reopen, got %d (ok=%v)", value, ok)
	}
}
