package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/poll"
	"github.com/adamavenir/huddle/internal/types"
)

// fakeBackend is an in-memory chat server covering the endpoints the CLI
// talks to.
type fakeBackend struct {
	mu       sync.Mutex
	next     int
	messages []types.Message
	votes    map[string][]types.PollVote
	failSend bool
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	b := &fakeBackend{votes: map[string][]types.PollVote{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /conversations/{id}/messages", b.listMessages)
	mux.HandleFunc("POST /conversations/{id}/messages", b.createMessage)
	mux.HandleFunc("PATCH /messages/{id}", b.updateMessage)
	mux.HandleFunc("GET /messages/{id}/votes", b.listVotes)
	mux.HandleFunc("POST /messages/{id}/votes", b.castVote)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) listMessages(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []types.Message{}
	for _, msg := range b.messages {
		if msg.ConversationID == r.PathValue("id") {
			out = append(out, msg)
		}
	}
	writeJSON(w, map[string]any{"messages": out})
}

func (b *fakeBackend) createMessage(w http.ResponseWriter, r *http.Request) {
	var req types.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSend {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"error": "unavailable"})
		return
	}
	b.next++
	msg := types.Message{
		ID:             fmt.Sprintf("srv%03d", b.next),
		CorrelationID:  req.CorrelationID,
		ConversationID: r.PathValue("id"),
		SenderID:       req.SenderID,
		Content:        req.Content,
		Type:           req.Type,
		CreatedAt:      time.Date(2026, 5, 1, 12, b.next, 0, 0, time.UTC),
		ReplyToID:      req.ReplyToID,
	}
	b.messages = append(b.messages, msg)
	writeJSON(w, msg)
}

func (b *fakeBackend) updateMessage(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, msg := range b.messages {
		if msg.ID != r.PathValue("id") {
			continue
		}
		if msg.SenderID != req.UserID {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]string{"error": "not your message"})
			return
		}
		b.messages[i].Content = req.Content
		b.messages[i].Edited = true
		writeJSON(w, b.messages[i])
		return
	}
	w.WriteHeader(http.StatusNotFound)
	writeJSON(w, map[string]string{"error": "not found"})
}

func (b *fakeBackend) listVotes(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	votes := b.votes[r.PathValue("id")]
	if votes == nil {
		votes = []types.PollVote{}
	}
	writeJSON(w, map[string]any{"votes": votes})
}

// castVote replaces the voter's previous answer, like a single-answer poll.
func (b *fakeBackend) castVote(w http.ResponseWriter, r *http.Request) {
	var req types.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.PathValue("id")
	kept := []types.PollVote{}
	for _, v := range b.votes[id] {
		if v.UserID != req.UserID {
			kept = append(kept, v)
		}
	}
	b.votes[id] = append(kept, types.PollVote{MessageID: id, OptionID: req.OptionID, UserID: req.UserID})
	writeJSON(w, map[string]any{"votes": b.votes[id]})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeTestConfig(t *testing.T, serverURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &core.Config{
		ServerURL:     serverURL,
		UserID:        "alice",
		DisplayName:   "Alice",
		Conversation:  "general",
		CachePath:     filepath.Join(dir, "cache.db"),
		RecordingsDir: filepath.Join(dir, "recordings"),
		LogLevel:      "error",
	}
	if err := core.SaveConfig(cfg, path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

// runCLI executes a fresh root command and returns stdout and stderr apart
// so JSON output stays parseable.
func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config", configPath))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSendHistoryEditFlow(t *testing.T) {
	backend, srv := newFakeBackend(t)
	configPath := writeTestConfig(t, srv.URL)

	stdout, stderr, err := runCLI(t, configPath, "send", "hello", "world", "--json")
	if err != nil {
		t.Fatalf("send: %v (%s)", err, stderr)
	}
	var sent []types.Message
	if err := json.Unmarshal([]byte(stdout), &sent); err != nil {
		t.Fatalf("unmarshal send: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != "srv001" || sent[0].Content != "hello world" {
		t.Fatalf("unexpected send result %+v", sent)
	}
	if sent[0].CorrelationID == "" {
		t.Fatalf("expected client id to be carried")
	}

	stdout, stderr, err = runCLI(t, configPath, "send", "--reply", "srv001", "same here")
	if err != nil {
		t.Fatalf("reply: %v (%s)", err, stderr)
	}
	if !strings.Contains(stdout, "same here") || !strings.Contains(stdout, "↳") {
		t.Fatalf("unexpected reply output %q", stdout)
	}

	stdout, stderr, err = runCLI(t, configPath, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v (%s)", err, stderr)
	}
	var history []types.Message
	if err := json.Unmarshal([]byte(stdout), &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 2 || history[1].ReplyToID == nil || *history[1].ReplyToID != "srv001" {
		t.Fatalf("unexpected history %+v", history)
	}

	stdout, stderr, err = runCLI(t, configPath, "edit", "srv001", "hello", "again", "--json")
	if err != nil {
		t.Fatalf("edit: %v (%s)", err, stderr)
	}
	var edited types.Message
	if err := json.Unmarshal([]byte(stdout), &edited); err != nil {
		t.Fatalf("unmarshal edit: %v", err)
	}
	if edited.Content != "hello again" || !edited.Edited {
		t.Fatalf("unexpected edit result %+v", edited)
	}
	backend.mu.Lock()
	stored := backend.messages[0].Content
	backend.mu.Unlock()
	if stored != "hello again" {
		t.Fatalf("server content %q", stored)
	}

	stdout, _, err = runCLI(t, configPath, "history", "--last", "1")
	if err != nil {
		t.Fatalf("history text: %v", err)
	}
	if strings.Contains(stdout, "hello again") || !strings.Contains(stdout, "same here") {
		t.Fatalf("--last 1 should show only the newest message, got %q", stdout)
	}
}

func TestHistoryOfflineUsesCache(t *testing.T) {
	_, srv := newFakeBackend(t)
	configPath := writeTestConfig(t, srv.URL)

	if _, stderr, err := runCLI(t, configPath, "send", "cached line"); err != nil {
		t.Fatalf("send: %v (%s)", err, stderr)
	}
	srv.Close()

	stdout, stderr, err := runCLI(t, configPath, "history", "--offline")
	if err != nil {
		t.Fatalf("offline history: %v (%s)", err, stderr)
	}
	if !strings.Contains(stdout, "cached line") {
		t.Fatalf("expected cached message, got %q", stdout)
	}

	stdout, stderr, err = runCLI(t, configPath, "history")
	if err != nil {
		t.Fatalf("history with server down: %v (%s)", err, stderr)
	}
	if !strings.Contains(stdout, "cached line") || !strings.Contains(stderr, "Warning:") {
		t.Fatalf("expected cached fallback with warning, got %q / %q", stdout, stderr)
	}
}

func TestSendFailureIsReported(t *testing.T) {
	backend, srv := newFakeBackend(t)
	backend.failSend = true
	configPath := writeTestConfig(t, srv.URL)

	_, stderr, err := runCLI(t, configPath, "send", "lost")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(stderr, "Error:") {
		t.Fatalf("expected error output, got %q", stderr)
	}

	backend.mu.Lock()
	backend.failSend = false
	backend.mu.Unlock()
	stdout, _, err := runCLI(t, configPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(stdout, "lost") || !strings.Contains(stdout, "failed") {
		t.Fatalf("expected failed outbox entry in history, got %q", stdout)
	}
}

func TestPollVoteFlow(t *testing.T) {
	_, srv := newFakeBackend(t)
	configPath := writeTestConfig(t, srv.URL)

	_, stderr, err := runCLI(t, configPath, "send", "--kind", "poll", "Lunch?", "--option", "tacos", "--option", "pizza")
	if err != nil {
		t.Fatalf("send poll: %v (%s)", err, stderr)
	}

	stdout, stderr, err := runCLI(t, configPath, "vote", "srv001", "pizza", "--json")
	if err != nil {
		t.Fatalf("vote: %v (%s)", err, stderr)
	}
	var results poll.Results
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if !results.Voted || results.Total != 1 || len(results.Options) != 2 {
		t.Fatalf("unexpected results %+v", results)
	}
	if !results.Options[1].Mine || results.Options[1].Count != 1 || results.Options[0].Count != 0 {
		t.Fatalf("unexpected tallies %+v", results.Options)
	}

	stdout, stderr, err = runCLI(t, configPath, "vote", "srv001", "1")
	if err != nil {
		t.Fatalf("change vote: %v (%s)", err, stderr)
	}
	if !strings.Contains(stdout, "✓ 1. tacos") || !strings.Contains(stdout, "1 votes") {
		t.Fatalf("unexpected results output %q", stdout)
	}

	if _, _, err := runCLI(t, configPath, "vote", "srv001", "sushi"); err == nil {
		t.Fatalf("expected unknown option error")
	}
}

func TestVoteRejectsNonPoll(t *testing.T) {
	_, srv := newFakeBackend(t)
	configPath := writeTestConfig(t, srv.URL)

	if _, _, err := runCLI(t, configPath, "send", "plain"); err != nil {
		t.Fatalf("send: %v", err)
	}
	_, stderr, err := runCLI(t, configPath, "vote", "srv001", "1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(stderr, "not a poll") {
		t.Fatalf("unexpected error output %q", stderr)
	}
}

func TestSendWithoutServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := core.SaveConfig(&core.Config{UserID: "alice", Conversation: "general", CachePath: filepath.Join(t.TempDir(), "c.db")}, path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	_, stderr, err := runCLI(t, path, "send", "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(stderr, "server_url not configured") {
		t.Fatalf("unexpected error output %q", stderr)
	}
}
