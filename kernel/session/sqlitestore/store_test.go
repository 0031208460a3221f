package sqlitestore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "wrenbot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_HistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	key := session.Key(99)

	history, err := store.LoadHistory(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("fresh key must load empty, got %d messages", len(history))
	}

	saved := []chat.Message{
		chat.Text(chat.RoleUser, "create a post"),
		{Role: chat.RoleModel, Parts: []chat.Part{{ToolCall: &chat.ToolCall{
			ID:   "c1",
			Name: "wrenbot/create-post",
			Args: map[string]any{"title": "Hello", "content": "World"},
		}}}},
	}
	if err := store.SaveHistory(context.Background(), key, saved); err != nil {
		t.Fatal(err)
	}
	history, err = store.LoadHistory(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	calls := history[1].ToolCalls()
	if len(calls) != 1 || calls[0].Name != "wrenbot/create-post" {
		t.Fatalf("tool call must survive the round trip: %+v", history[1])
	}
}

func TestStore_HistoryWindowCap(t *testing.T) {
	store := newTestStore(t)
	key := session.Key(5)

	var history []chat.Message
	for i := 0; i < 25; i++ {
		history = append(history,
			chat.Text(chat.RoleUser, fmt.Sprintf("q%d", i)),
			chat.Text(chat.RoleModel, fmt.Sprintf("a%d", i)),
		)
		if err := store.SaveHistory(context.Background(), key, history); err != nil {
			t.Fatal(err)
		}
		loaded, err := store.LoadHistory(context.Background(), key)
		if err != nil {
			t.Fatal(err)
		}
		history = loaded
	}
	if len(history) != session.MaxMessages {
		t.Fatalf("window size = %d, want %d", len(history), session.MaxMessages)
	}
}

func TestStore_HistoryExpiry(t *testing.T) {
	store := newTestStore(t)
	key := session.Key(3)

	now := time.Now()
	store.now = func() time.Time { return now }
	if err := store.SaveHistory(context.Background(), key, []chat.Message{
		chat.Text(chat.RoleUser, "hello"),
	}); err != nil {
		t.Fatal(err)
	}

	store.now = func() time.Time { return now.Add(session.TTL + time.Minute) }
	history, err := store.LoadHistory(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatalf("history past TTL must expire, got %d messages", len(history))
	}

	// The expired row is gone even at the original time.
	store.now = func() time.Time { return now }
	history, err = store.LoadHistory(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Fatal("expired row must be deleted, not resurrected")
	}
}

func TestStore_PairingLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordPending(ctx, Pending{SenderID: 1001, Username: "alice", FirstName: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordPending(ctx, Pending{SenderID: 1002}); err != nil {
		t.Fatal(err)
	}
	// Re-recording is idempotent.
	if err := store.RecordPending(ctx, Pending{SenderID: 1001, Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	pending, err := store.PendingConnections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending count = %d, want 2", len(pending))
	}
	if pending[0].SenderID != 1001 || pending[0].Username != "alice" {
		t.Fatalf("unexpected first pending: %+v", pending[0])
	}

	if err := store.ApprovePending(ctx, 1001); err != nil {
		t.Fatal(err)
	}
	if err := store.IgnorePending(ctx, 1002); err != nil {
		t.Fatal(err)
	}

	pending, err = store.PendingConnections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending must be drained, got %d", len(pending))
	}
	allowed, err := store.AllowedSenders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(allowed) != 1 || allowed[0] != 1001 {
		t.Fatalf("allowed senders = %v, want [1001]", allowed)
	}
}
