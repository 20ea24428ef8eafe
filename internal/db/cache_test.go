package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/types"
)

var (
	_ conversation.Store     = (*Cache)(nil)
	_ conversation.VoteCache = (*Cache)(nil)
)

func TestSchemaCreated(t *testing.T) {
	db := openTestDB(t)
	ok, err := SchemaExists(db)
	if err != nil || !ok {
		t.Fatalf("expected schema, got %v %v", ok, err)
	}
	// Re-running is a no-op.
	if err := InitSchema(db); err != nil {
		t.Fatalf("re-init: %v", err)
	}
}

func TestMigrateAddsColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE huddle_messages (
		id TEXT PRIMARY KEY, conversation_id TEXT NOT NULL, client_id TEXT, sender_id TEXT NOT NULL,
		content TEXT NOT NULL, message_type TEXT NOT NULL, created_at INTEGER NOT NULL,
		reply_to TEXT, edited INTEGER NOT NULL DEFAULT 0)`); err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(conn); err != nil {
		t.Fatalf("init: %v", err)
	}
	cols, err := getTableInfo(conn, "huddle_messages")
	if err != nil {
		t.Fatal(err)
	}
	if !hasColumn(cols, "sender_display") {
		t.Fatal("expected sender_display column after migration")
	}
}

func TestSaveAndQueryMessages(t *testing.T) {
	cache := NewCache(openTestDB(t))
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msgs := []types.Message{
		{ID: "m2", SenderID: "bob", Content: "second", Type: types.MessageTypeText, CreatedAt: base.Add(time.Minute)},
		{ID: "m1", CorrelationID: "corr-1", SenderID: "me", SenderDisplay: "Me", Content: "first", Type: types.MessageTypeText, CreatedAt: base},
		{ID: "m3", SenderID: "bob", Content: "reply", Type: types.MessageTypeText, CreatedAt: base.Add(2 * time.Minute), ReplyToID: strPtr("m1"), Edited: true},
		{ID: "tmp-1", SenderID: "me", Content: "pending", Type: types.MessageTypeText, CreatedAt: base, State: types.SendStatePending},
		{ID: "sys-1", Content: "carol joined", Type: types.MessageTypeSystem, CreatedAt: base},
	}
	if err := cache.SaveMessages("c-1", msgs); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := cache.CachedMessages(types.MessageQueryOptions{ConversationID: "c-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 confirmed messages, got %d", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" || got[2].ID != "m3" {
		t.Fatalf("unexpected order %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].CorrelationID != "corr-1" || got[0].SenderDisplay != "Me" || got[0].ConversationID != "c-1" {
		t.Fatalf("unexpected first message %+v", got[0])
	}
	if got[2].ReplyToID == nil || *got[2].ReplyToID != "m1" || !got[2].Edited {
		t.Fatalf("unexpected reply %+v", got[2])
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Fatalf("unexpected timestamp %v", got[0].CreatedAt)
	}

	latest, err := cache.CachedMessages(types.MessageQueryOptions{ConversationID: "c-1", Limit: 2})
	if err != nil {
		t.Fatalf("limited query: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != "m2" || latest[1].ID != "m3" {
		t.Fatalf("expected latest two in order, got %+v", latest)
	}

	before := base.Add(time.Minute)
	older, err := cache.CachedMessages(types.MessageQueryOptions{ConversationID: "c-1", Before: &before})
	if err != nil {
		t.Fatalf("before query: %v", err)
	}
	if len(older) != 1 || older[0].ID != "m1" {
		t.Fatalf("unexpected before result %+v", older)
	}
}

func TestSaveMessagesUpdatesEdits(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db)
	msg := types.Message{ID: "m1", CorrelationID: "corr", SenderID: "me", Content: "v1", Type: types.MessageTypeText, CreatedAt: time.Now()}
	if err := cache.SaveMessages("c", []types.Message{msg}); err != nil {
		t.Fatal(err)
	}
	msg.Content = "v2"
	msg.Edited = true
	msg.CorrelationID = ""
	if err := cache.SaveMessages("c", []types.Message{msg}); err != nil {
		t.Fatal(err)
	}
	got, err := GetMessage(db, "corr")
	if err != nil || got == nil {
		t.Fatalf("lookup by correlation id: %v %v", got, err)
	}
	if got.Content != "v2" || !got.Edited {
		t.Fatalf("expected edit to persist, got %+v", got)
	}
	count, err := CountMessages(db, "c")
	if err != nil || count != 1 {
		t.Fatalf("expected 1 message, got %d %v", count, err)
	}
	missing, err := GetMessage(db, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing message, got %v %v", missing, err)
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db)
	entries := []types.OutboxEntry{
		{CorrelationID: "a", ConversationID: "c", TempID: "tmp-a", SenderID: "me", Content: "one", Type: types.MessageTypeText, CreatedAt: 100},
		{CorrelationID: "b", ConversationID: "c", TempID: "tmp-b", SenderID: "me", Content: "two", Type: types.MessageTypeText, CreatedAt: 200, ReplyToID: strPtr("m9")},
		{CorrelationID: "z", ConversationID: "other", TempID: "tmp-z", SenderID: "me", Content: "x", Type: types.MessageTypeText, CreatedAt: 50},
	}
	for _, e := range entries {
		if err := cache.UpsertOutbox(e); err != nil {
			t.Fatalf("upsert %s: %v", e.CorrelationID, err)
		}
	}
	if err := cache.MarkOutboxFailed("b", "offline"); err != nil {
		t.Fatal(err)
	}
	if err := cache.MarkOutboxSent("a", "m10"); err != nil {
		t.Fatal(err)
	}

	open, err := cache.OpenOutbox("c")
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	if len(open) != 1 || open[0].CorrelationID != "b" {
		t.Fatalf("expected only the failed entry, got %+v", open)
	}
	if open[0].Status != types.OutboxFailed || open[0].ErrorMessage != "offline" {
		t.Fatalf("unexpected failed entry %+v", open[0])
	}
	if open[0].ReplyToID == nil || *open[0].ReplyToID != "m9" || open[0].CreatedAt != 200 {
		t.Fatalf("unexpected entry fields %+v", open[0])
	}

	sent, err := GetOutboxEntry(db, "a")
	if err != nil || sent == nil {
		t.Fatalf("get sent: %v %v", sent, err)
	}
	if sent.Status != types.OutboxSent || sent.ServerID != "m10" {
		t.Fatalf("unexpected sent entry %+v", sent)
	}

	// Retrying a failed entry re-queues it.
	retry := open[0]
	retry.Status = types.OutboxQueued
	retry.ErrorMessage = ""
	if err := cache.UpsertOutbox(retry); err != nil {
		t.Fatal(err)
	}
	again, _ := GetOutboxEntry(db, "b")
	if again.Status != types.OutboxQueued || again.ErrorMessage != "" {
		t.Fatalf("expected requeued entry, got %+v", again)
	}

	pruned, err := PruneSentOutbox(db, time.Now().Add(time.Minute))
	if err != nil || pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d %v", pruned, err)
	}
}

func TestUpsertOutboxRequiresCorrelation(t *testing.T) {
	if err := UpsertOutbox(openTestDB(t), types.OutboxEntry{ConversationID: "c"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLastConversation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	cache, err := OpenCache(path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()
	got, err := cache.LastConversation()
	if err != nil || got != "" {
		t.Fatalf("expected empty, got %q %v", got, err)
	}
	if err := cache.SetLastConversation("c-42"); err != nil {
		t.Fatal(err)
	}
	got, _ = cache.LastConversation()
	if got != "c-42" {
		t.Fatalf("unexpected last conversation %q", got)
	}
}

func TestPollVotesReplaced(t *testing.T) {
	cache := NewCache(openTestDB(t))
	first := []types.PollVote{
		{MessageID: "p1", OptionID: "a", UserID: "bob"},
		{MessageID: "p1", OptionID: "b", UserID: "amy"},
		{MessageID: "p1", OptionID: "", UserID: "zed"},
	}
	if err := cache.SavePollVotes("p1", first); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cache.CachedPollVotes("p1")
	if err != nil || len(got) != 2 || got[0].UserID != "amy" {
		t.Fatalf("unexpected votes %+v %v", got, err)
	}
	if err := cache.SavePollVotes("p1", []types.PollVote{{MessageID: "p1", OptionID: "b", UserID: "bob"}}); err != nil {
		t.Fatal(err)
	}
	got, _ = cache.CachedPollVotes("p1")
	if len(got) != 1 || got[0].OptionID != "b" {
		t.Fatalf("expected replacement, got %+v", got)
	}
	none, _ := cache.CachedPollVotes("p2")
	if len(none) != 0 {
		t.Fatalf("expected no votes, got %+v", none)
	}
}
