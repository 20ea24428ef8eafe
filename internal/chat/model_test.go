package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/adamavenir/huddle/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeService struct {
	mu    sync.Mutex
	seq   int
	sent  []types.SendRequest
	votes map[string][]types.PollVote
	now   time.Time
}

func newFakeService() *fakeService {
	return &fakeService{votes: map[string][]types.PollVote{}, now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *fakeService) SendMessage(_ context.Context, req types.SendRequest) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.sent = append(s.sent, req)
	return &types.Message{
		ID:             fmt.Sprintf("msg-%d", s.seq),
		CorrelationID:  req.CorrelationID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Type:           req.Type,
		CreatedAt:      s.now.Add(time.Duration(s.seq) * time.Second),
		ReplyToID:      req.ReplyToID,
	}, nil
}

func (s *fakeService) FetchMessages(context.Context, string, string) ([]types.Message, error) {
	return nil, nil
}

func (s *fakeService) UpdateMessage(_ context.Context, id string, req types.UpdateRequest) (*types.Message, error) {
	return &types.Message{ID: id, SenderID: req.UserID, Content: req.Content, Type: types.MessageTypeText, Edited: true, CreatedAt: s.now}, nil
}

func (s *fakeService) Vote(_ context.Context, req types.VoteRequest) ([]types.PollVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []types.PollVote
	for _, v := range s.votes[req.MessageID] {
		if v.UserID != req.UserID {
			kept = append(kept, v)
		}
	}
	kept = append(kept, types.PollVote{MessageID: req.MessageID, OptionID: req.OptionID, UserID: req.UserID})
	s.votes[req.MessageID] = kept
	return kept, nil
}

func (s *fakeService) PollVotes(_ context.Context, id string) ([]types.PollVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes[id], nil
}

func (s *fakeService) sentRequests() []types.SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.SendRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

func newTestModel(t *testing.T) (*Model, *fakeService) {
	t.Helper()
	svc := newFakeService()
	ctrl, err := conversation.New(conversation.Options{
		ConversationID: "general",
		UserID:         "alice",
		DisplayName:    "Alice",
		Service:        svc,
		Anchor:         scroll.New(scroll.WithThreshold(PinThreshold)),
		Now:            func() time.Time { return svc.now },
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	m, err := NewModel(Options{Controller: ctrl})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	t.Cleanup(m.Close)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return m, svc
}

func receive(m *Model, id, sender, body string) types.Message {
	ev := m.ctrl.ReceiveConfirmed(types.Message{
		ID:        id,
		SenderID:  sender,
		Content:   body,
		Type:      types.MessageTypeText,
		CreatedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	})
	return ev.Message
}

func typeAndSubmit(m *Model, value string) tea.Cmd {
	m.input.SetValue(value)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func runCmd(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestSubmitSendsText(t *testing.T) {
	m, svc := newTestModel(t)

	cmd := typeAndSubmit(m, "hello")
	messages := m.ctrl.Messages()
	if len(messages) != 1 || !messages[0].Pending() {
		t.Fatalf("expected one pending message, got %+v", messages)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}

	if msg := runCmd(cmd); msg != nil {
		t.Fatalf("unexpected result %#v", msg)
	}
	sent := svc.sentRequests()
	if len(sent) != 1 || sent[0].Content != "hello" || sent[0].Type != types.MessageTypeText {
		t.Fatalf("sent: %+v", sent)
	}
	messages = m.ctrl.Messages()
	if len(messages) != 1 || messages[0].ID != "msg-1" || messages[0].Pending() {
		t.Fatalf("expected confirmed msg-1, got %+v", messages)
	}
}

func TestSubmitEmptyInput(t *testing.T) {
	m, svc := newTestModel(t)
	if cmd := typeAndSubmit(m, ""); cmd != nil {
		t.Fatalf("expected no command")
	}
	if len(m.ctrl.Messages()) != 0 || len(svc.sentRequests()) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestReplyCommandWithText(t *testing.T) {
	m, svc := newTestModel(t)
	receive(m, "msg-b1", "bob", "lunch?")

	runCmd(typeAndSubmit(m, "/reply msg-b1 sure"))
	sent := svc.sentRequests()
	if len(sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sent))
	}
	if sent[0].Content != "sure" || sent[0].ReplyToID == nil || *sent[0].ReplyToID != "msg-b1" {
		t.Fatalf("reply request: %+v", sent[0])
	}
	if m.replyToID != "" {
		t.Fatalf("reply target should be cleared")
	}
}

func TestReplyCommandSetsTarget(t *testing.T) {
	m, svc := newTestModel(t)
	receive(m, "msg-b1", "bob", "lunch?")

	if cmd := typeAndSubmit(m, "/reply #msg-b1"); cmd != nil {
		t.Fatalf("expected no command")
	}
	if m.replyToID != "msg-b1" {
		t.Fatalf("reply target: got %q", m.replyToID)
	}
	if view := m.View(); !strings.Contains(view, "replying to bob: lunch?") {
		t.Fatalf("compose context missing from view")
	}

	runCmd(typeAndSubmit(m, "tacos"))
	sent := svc.sentRequests()
	if len(sent) != 1 || sent[0].ReplyToID == nil || *sent[0].ReplyToID != "msg-b1" {
		t.Fatalf("reply request: %+v", sent)
	}
}

func TestReplyToSystemMessageRejected(t *testing.T) {
	m, svc := newTestModel(t)
	sys := m.ctrl.ApplySystemEvent("bob joined")

	typeAndSubmit(m, "/reply "+sys.ID+" hi")
	if !m.statusErr || !strings.Contains(m.status, "system messages") {
		t.Fatalf("expected error status, got %q", m.status)
	}
	if len(svc.sentRequests()) != 0 {
		t.Fatalf("nothing should be sent")
	}
}

func TestEscClearsReply(t *testing.T) {
	m, _ := newTestModel(t)
	receive(m, "msg-b1", "bob", "lunch?")
	typeAndSubmit(m, "/reply msg-b1")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.replyToID != "" {
		t.Fatalf("reply target should be cleared")
	}
}

func TestEditCommand(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ctrl.Send(context.Background(), "typo", types.MessageTypeText, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := runCmd(typeAndSubmit(m, "/edit msg-1 fixed"))
	result, ok := msg.(opResultMsg)
	if !ok || result.err != nil || result.status != "edited" {
		t.Fatalf("edit result: %#v", msg)
	}
	edited, _ := m.ctrl.Message("msg-1")
	if edited.Content != "fixed" || !edited.Edited {
		t.Fatalf("edited message: %+v", edited)
	}
}

func TestUpArrowPrefillsLastEdit(t *testing.T) {
	m, _ := newTestModel(t)
	if _, err := m.ctrl.Send(context.Background(), "first draft", types.MessageTypeText, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	receive(m, "msg-b1", "bob", "noted")

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if m.editingID != "msg-1" {
		t.Fatalf("editing: got %q", m.editingID)
	}
	if m.input.Value() != "first draft" {
		t.Fatalf("input: got %q", m.input.Value())
	}
}

func TestBeginEditRejectsOtherSender(t *testing.T) {
	m, _ := newTestModel(t)
	msg := receive(m, "msg-b1", "bob", "mine")
	if err := m.beginEdit(msg); err == nil {
		t.Fatalf("expected error editing another user's message")
	}
}

func TestCopyCommand(t *testing.T) {
	m, _ := newTestModel(t)
	receive(m, "msg-b1", "bob", "copy me")

	var copied string
	prev := clipboardWrite
	clipboardWrite = func(text string) error {
		copied = text
		return nil
	}
	t.Cleanup(func() { clipboardWrite = prev })

	typeAndSubmit(m, "/copy msg-b1")
	if copied != "copy me" {
		t.Fatalf("copied: got %q", copied)
	}
	if m.statusErr {
		t.Fatalf("unexpected error status %q", m.status)
	}
}

func TestUnknownCommand(t *testing.T) {
	m, _ := newTestModel(t)
	typeAndSubmit(m, "/frobnicate")
	if !m.statusErr || !strings.Contains(m.status, "unknown command") {
		t.Fatalf("status: %q", m.status)
	}
}

func TestResolveMessage(t *testing.T) {
	m, _ := newTestModel(t)
	receive(m, "abc123", "bob", "one")
	receive(m, "abc456", "bob", "two")

	if _, err := m.resolveMessage("abc"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
	msg, err := m.resolveMessage("#abc4")
	if err != nil || msg.ID != "abc456" {
		t.Fatalf("resolve: got %+v %v", msg, err)
	}
	if _, err := m.resolveMessage("zzz"); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestVoteCommandShowsResults(t *testing.T) {
	m, _ := newTestModel(t)
	poll := content.Encode(content.Poll{
		Question: "Lunch?",
		Options:  []content.PollOption{{ID: "a", Text: "tacos"}, {ID: "b", Text: "pizza"}},
	})
	msg := receive(m, "poll-1", "bob", poll)

	before := m.renderPoll(msg, content.Decode(poll).(content.Poll), 80)
	if !strings.Contains(before, "vote to see results") {
		t.Fatalf("counts should be hidden before voting:\n%s", before)
	}

	result := runCmd(typeAndSubmit(m, "/vote poll-1 2"))
	if r, ok := result.(opResultMsg); !ok || r.err != nil {
		t.Fatalf("vote result: %#v", result)
	}
	after := m.renderPoll(msg, content.Decode(poll).(content.Poll), 80)
	if !strings.Contains(after, "(•)") || !strings.Contains(after, "1 votes") {
		t.Fatalf("expected own vote in:\n%s", after)
	}
}

func TestNewContentWhileScrolledUp(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < 60; i++ {
		receive(m, fmt.Sprintf("h-%d", i), "bob", fmt.Sprintf("message %d", i))
	}
	m.refreshViewport(true)
	if !m.ctrl.Anchor().Pinned() {
		t.Fatalf("expected pinned at bottom")
	}

	m.viewport.SetYOffset(0)
	m.syncAnchor()
	if m.ctrl.Anchor().Pinned() {
		t.Fatalf("expected unpinned after scrolling up")
	}

	var notified string
	prev := notifySend
	notifySend = func(_, body string) error {
		notified = body
		return nil
	}
	t.Cleanup(func() { notifySend = prev })
	m.notify = true

	ev := m.ctrl.ReceiveConfirmed(types.Message{ID: "late", SenderID: "carol", Content: "ping", Type: types.MessageTypeText, CreatedAt: time.Now()})
	if ev.Directive.Action != scroll.ActionShowNewContent {
		t.Fatalf("directive: got %v", ev.Directive.Action)
	}
	runCmd(m.handleControllerEvent(ev))
	if notified != "carol: ping" {
		t.Fatalf("notification: got %q", notified)
	}
	if m.viewport.YOffset != 0 {
		t.Fatalf("viewport moved to %d", m.viewport.YOffset)
	}
	if bar := m.renderNewContentBar(); !strings.Contains(bar, "carol") {
		t.Fatalf("new content bar: %q", bar)
	}

	m.followBottom()
	if !m.ctrl.Anchor().Pinned() || !m.viewport.AtBottom() {
		t.Fatalf("expected follow to re-pin")
	}
	if m.renderNewContentBar() != "" {
		t.Fatalf("new content bar should clear")
	}
}

func TestOwnMessageDoesNotNotify(t *testing.T) {
	m, _ := newTestModel(t)
	m.notify = true
	ev := conversation.Event{
		Kind:      conversation.EventAppended,
		Message:   types.Message{ID: "x", SenderID: "alice", Content: "hi", Type: types.MessageTypeText},
		Directive: scroll.Directive{Action: scroll.ActionShowNewContent},
	}
	if cmd := m.handleControllerEvent(ev); cmd != nil {
		t.Fatalf("own messages should not notify")
	}
}

func TestNewModelUsesLineThreshold(t *testing.T) {
	svc := newFakeService()
	ctrl, err := conversation.New(conversation.Options{
		ConversationID: "general",
		UserID:         "alice",
		Service:        svc,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if got := ctrl.Anchor().Threshold(); got != scroll.DefaultThreshold {
		t.Fatalf("default threshold: got %d", got)
	}
	m, err := NewModel(Options{Controller: ctrl})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	t.Cleanup(m.Close)
	if got := ctrl.Anchor().Threshold(); got != PinThreshold {
		t.Fatalf("expected threshold %d, got %d", PinThreshold, got)
	}

	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	for i := 0; i < 60; i++ {
		receive(m, fmt.Sprintf("m-%d", i), "bob", fmt.Sprintf("line %d", i))
	}
	m.refreshViewport(true)
	m.viewport.SetYOffset(0)
	m.syncAnchor()
	if ctrl.Anchor().Pinned() {
		t.Fatalf("expected unpinned at the top of a long conversation")
	}
}
