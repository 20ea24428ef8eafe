package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/huddle/internal/types"
	"github.com/gorilla/websocket"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api/", Options{Token: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSendMessageEchoesCorrelation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/conversations/c-1/messages" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req types.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(types.Message{
			ID:            "msg-1",
			CorrelationID: req.CorrelationID,
			SenderID:      req.SenderID,
			Content:       req.Content,
			Type:          req.Type,
		})
	}))

	msg, err := c.SendMessage(context.Background(), types.SendRequest{
		ConversationID: "c-1",
		CorrelationID:  "corr-1",
		Content:        "hi",
		SenderID:       "me",
		Type:           types.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != "msg-1" || msg.CorrelationID != "corr-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestFetchMessagesPassesUser(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("userId") != "me" {
			t.Errorf("expected userId query, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","senderId":"bob","content":"yo","messageType":"TEXT","createdAt":"2026-01-01T10:00:00Z"}]}`))
	}))
	msgs, err := c.FetchMessages(context.Background(), "c-1", "me")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderID != "bob" || msgs[0].CreatedAt.Hour() != 10 {
		t.Fatalf("unexpected messages %+v", msgs)
	}
}

func TestUpdateAndVote(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/api/messages/m1":
			var req types.UpdateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(types.Message{ID: "m1", Content: req.Content, Edited: true})
		case r.Method == http.MethodPost && r.URL.Path == "/api/messages/p1/votes":
			var req types.VoteRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]any{"votes": []types.PollVote{{MessageID: "p1", OptionID: req.OptionID, UserID: req.UserID}}})
		case r.Method == http.MethodGet && r.URL.Path == "/api/messages/p1/votes":
			_, _ = w.Write([]byte(`{"votes":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	msg, err := c.UpdateMessage(context.Background(), "m1", types.UpdateRequest{Content: "new", UserID: "me"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if msg.Content != "new" || !msg.Edited {
		t.Fatalf("unexpected update %+v", msg)
	}
	votes, err := c.Vote(context.Background(), types.VoteRequest{MessageID: "p1", UserID: "me", OptionID: "2"})
	if err != nil {
		t.Fatalf("vote: %v", err)
	}
	if len(votes) != 1 || votes[0].OptionID != "2" {
		t.Fatalf("unexpected votes %+v", votes)
	}
	if _, err := c.PollVotes(context.Background(), "p1"); err != nil {
		t.Fatalf("poll votes: %v", err)
	}
	if _, err := c.PollVotes(context.Background(), "zzz"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not_owner","message":"cannot edit"}`))
	}))
	_, err := c.UpdateMessage(context.Background(), "m1", types.UpdateRequest{Content: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "not_owner" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !strings.Contains(apiErr.Error(), "cannot edit") {
		t.Fatalf("unexpected message %q", apiErr.Error())
	}
}

func TestSendRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"m"}`))
	}))
	defer srv.Close()
	c, err := NewClient(srv.URL, Options{SendRate: 0.001, SendBurst: 1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req := types.SendRequest{ConversationID: "c", Content: "x", Type: types.MessageTypeText}
	if _, err := c.SendMessage(context.Background(), req); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.SendMessage(ctx, req); err == nil {
		t.Fatal("expected second send to be limited")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	if _, err := NormalizeBaseURL("chat.example.com"); err == nil {
		t.Fatal("expected scheme error")
	}
	got, err := NormalizeBaseURL(" https://chat.example.com/api/ ")
	if err != nil || got != "https://chat.example.com/api" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []types.Message
	system   []string
	votes    map[string][]types.PollVote
	got      chan struct{}
}

func (h *recordingHandler) HandleMessage(msg types.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func (h *recordingHandler) HandleSystem(text string) {
	h.mu.Lock()
	h.system = append(h.system, text)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func (h *recordingHandler) HandleVotes(id string, votes []types.PollVote) {
	h.mu.Lock()
	h.votes[id] = votes
	h.mu.Unlock()
	h.got <- struct{}{}
}

func TestFeedDispatchesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("conversationId") != "c-1" {
			http.Error(w, "bad conversation", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		frames := []Envelope{
			{Type: EventMessage, Message: &types.Message{ID: "m1", SenderID: "bob", Content: "hey", Type: types.MessageTypeText}},
			{Type: "typing"},
			{Type: EventSystem, Text: "carol joined"},
			{Type: EventVotes, MessageID: "p1", Votes: []types.PollVote{{MessageID: "p1", OptionID: "a", UserID: "bob"}}},
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	handler := &recordingHandler{votes: map[string][]types.PollVote{}, got: make(chan struct{}, 8)}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	feed, err := NewFeed(wsURL, "c-1", "me", "", handler, nil)
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-handler.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.messages) != 1 || handler.messages[0].ID != "m1" {
		t.Fatalf("unexpected messages %+v", handler.messages)
	}
	if len(handler.system) != 1 || handler.system[0] != "carol joined" {
		t.Fatalf("unexpected system events %v", handler.system)
	}
	if len(handler.votes["p1"]) != 1 {
		t.Fatalf("unexpected votes %+v", handler.votes)
	}
}

func TestNewFeedRejectsHTTPScheme(t *testing.T) {
	if _, err := NewFeed("http://example.com/ws", "c", "u", "", nil, nil); err == nil {
		t.Fatal("expected scheme error")
	}
}
