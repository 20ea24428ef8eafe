package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/poll"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/adamavenir/huddle/internal/types"
)

var (
	ErrNotOwner     = errors.New("message belongs to another user")
	ErrNotFound     = errors.New("message not found")
	ErrNotConfirmed = errors.New("message not confirmed yet")
	ErrNotFailed    = errors.New("message has not failed")
	ErrEmptyContent = errors.New("message content is empty")
	ErrNotReplyable = errors.New("message cannot be replied to")
)

// EventKind describes a change to the message list.
type EventKind string

const (
	EventAppended EventKind = "appended"
	EventReplaced EventKind = "replaced"
	EventUpdated  EventKind = "updated"
	EventFailed   EventKind = "failed"
	EventReset    EventKind = "reset"
	EventPoll     EventKind = "poll"
)

// Event is delivered to the host after each change.
type Event struct {
	Kind      EventKind
	Message   types.Message
	Index     int
	PollID    string
	Directive scroll.Directive
}

// Options configures a Controller.
type Options struct {
	ConversationID string
	UserID         string
	DisplayName    string
	Service        MessageService
	Store          Store
	Anchor         *scroll.Anchor
	Logger         *slog.Logger
	Metrics        *Metrics
	Now            func() time.Time
	OnEvent        func(Event)
}

// Controller owns the message list of one conversation. It applies sends
// and edits optimistically and reconciles them with confirmed server state.
type Controller struct {
	mu             sync.Mutex
	conversationID string
	userID         string
	displayName    string
	messages       []types.Message

	service MessageService
	store   Store
	polls   *poll.Tracker
	anchor  *scroll.Anchor
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
	onEvent func(Event)
}

// New creates a controller.
func New(opts Options) (*Controller, error) {
	if opts.Service == nil {
		return nil, errors.New("conversation: message service required")
	}
	if opts.ConversationID == "" || opts.UserID == "" {
		return nil, errors.New("conversation: conversation id and user id required")
	}
	c := &Controller{
		conversationID: opts.ConversationID,
		userID:         opts.UserID,
		displayName:    opts.DisplayName,
		service:        opts.Service,
		store:          opts.Store,
		polls:          poll.NewTracker(opts.UserID),
		anchor:         opts.Anchor,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            opts.Now,
		onEvent:        opts.OnEvent,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.anchor == nil {
		c.anchor = scroll.New()
	}
	return c, nil
}

// ConversationID returns the conversation this controller owns.
func (c *Controller) ConversationID() string {
	return c.conversationID
}

// UserID returns the viewer.
func (c *Controller) UserID() string {
	return c.userID
}

// Anchor returns the scroll anchor fed by this controller.
func (c *Controller) Anchor() *scroll.Anchor {
	return c.anchor
}

// Messages returns a copy of the ordered message list.
func (c *Controller) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Message finds a message by server id, temp id or correlation id.
func (c *Controller) Message(id string) (types.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexByIDLocked(id, -1); idx >= 0 {
		return c.messages[idx], true
	}
	if idx := c.indexByCorrelationLocked(id); idx >= 0 {
		return c.messages[idx], true
	}
	return types.Message{}, false
}

// Index returns the position of a message id in the list.
func (c *Controller) Index(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexByIDLocked(id, -1)
	return idx, idx >= 0
}

// AvatarFlags reports, per message, whether its sender avatar is shown.
func (c *Controller) AvatarFlags() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.AvatarFlags(c.messages)
}

// Close cancels anchor timers.
func (c *Controller) Close() {
	c.anchor.Close()
}

func (c *Controller) indexByIDLocked(id string, skip int) int {
	if id == "" {
		return -1
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if i != skip && c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) indexByCorrelationLocked(correlationID string) int {
	if correlationID == "" {
		return -1
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].CorrelationID == correlationID {
			return i
		}
	}
	return -1
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

// Stage appends an optimistic message and returns it without waiting on the
// network. Deliver completes the send.
func (c *Controller) Stage(body string, msgType types.MessageType, replyToID *string) (types.Message, error) {
	if strings.TrimSpace(body) == "" {
		return types.Message{}, ErrEmptyContent
	}
	if !msgType.Valid() {
		return types.Message{}, fmt.Errorf("invalid message type %q", msgType)
	}
	tempID, err := core.NewTempID()
	if err != nil {
		return types.Message{}, err
	}

	msg := types.Message{
		ID:             tempID,
		CorrelationID:  core.NewCorrelationID(),
		ConversationID: c.conversationID,
		SenderID:       c.userID,
		SenderDisplay:  c.displayName,
		Content:        body,
		Type:           msgType,
		CreatedAt:      c.now(),
		ReplyToID:      replyToID,
		State:          types.SendStatePending,
	}

	c.mu.Lock()
	if replyToID != nil {
		target := c.indexByIDLocked(*replyToID, -1)
		// Temp ids are replaced on confirmation, so only confirmed messages
		// can be reply targets.
		if target < 0 || c.messages[target].IsSystem() || c.messages[target].State != types.SendStateConfirmed {
			c.mu.Unlock()
			return types.Message{}, fmt.Errorf("reply to %s: %w", *replyToID, ErrNotReplyable)
		}
	}
	c.messages = append(c.messages, msg)
	idx := len(c.messages) - 1
	c.mu.Unlock()

	c.metrics.pending.Inc()
	if c.store != nil {
		if err := c.store.UpsertOutbox(outboxEntry(msg, types.OutboxQueued, "")); err != nil {
			c.logger.Warn("outbox_write_failed", "correlation_id", msg.CorrelationID, "error", err)
		}
	}
	c.emit(Event{Kind: EventAppended, Message: msg, Index: idx, Directive: c.anchor.Follow()})
	return msg, nil
}

// Deliver sends a staged message. On failure the message stays in the list
// marked failed; it is never retried automatically.
func (c *Controller) Deliver(ctx context.Context, correlationID string) (types.Message, error) {
	c.mu.Lock()
	idx := c.indexByCorrelationLocked(correlationID)
	if idx < 0 {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("deliver %s: %w", correlationID, ErrNotFound)
	}
	msg := c.messages[idx]
	c.mu.Unlock()
	if !msg.Pending() {
		return msg, nil
	}

	req := types.SendRequest{
		ConversationID: c.conversationID,
		CorrelationID:  correlationID,
		Content:        msg.Content,
		SenderID:       c.userID,
		Type:           msg.Type,
		ReplyToID:      msg.ReplyToID,
	}
	confirmed, err := c.service.SendMessage(ctx, req)
	if err == nil && confirmed == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		return c.markFailed(correlationID, err)
	}
	if confirmed.CorrelationID == "" {
		confirmed.CorrelationID = correlationID
	}
	ev := c.ReceiveConfirmed(*confirmed)
	return ev.Message, nil
}

// Send stages and delivers in one call.
func (c *Controller) Send(ctx context.Context, body string, msgType types.MessageType, replyToID *string) (types.Message, error) {
	msg, err := c.Stage(body, msgType, replyToID)
	if err != nil {
		return types.Message{}, err
	}
	return c.Deliver(ctx, msg.CorrelationID)
}

// SendPayload encodes p and sends it with the matching message type.
func (c *Controller) SendPayload(ctx context.Context, p content.Payload, replyToID *string) (types.Message, error) {
	return c.Send(ctx, content.Encode(p), content.MessageTypeFor(p), replyToID)
}

// Resend retries a failed message under its original correlation id.
func (c *Controller) Resend(ctx context.Context, correlationID string) (types.Message, error) {
	c.mu.Lock()
	idx := c.indexByCorrelationLocked(correlationID)
	if idx < 0 {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("resend %s: %w", correlationID, ErrNotFound)
	}
	if !c.messages[idx].Failed() {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("resend %s: %w", correlationID, ErrNotFailed)
	}
	c.messages[idx].State = types.SendStatePending
	c.messages[idx].Err = ""
	msg := c.messages[idx]
	c.mu.Unlock()

	c.metrics.pending.Inc()
	if c.store != nil {
		if err := c.store.UpsertOutbox(outboxEntry(msg, types.OutboxQueued, "")); err != nil {
			c.logger.Warn("outbox_write_failed", "correlation_id", correlationID, "error", err)
		}
	}
	c.emit(Event{Kind: EventUpdated, Message: msg, Index: idx})
	return c.Deliver(ctx, correlationID)
}

func (c *Controller) markFailed(correlationID string, cause error) (types.Message, error) {
	c.mu.Lock()
	idx := c.indexByCorrelationLocked(correlationID)
	var msg types.Message
	changed := false
	if idx >= 0 {
		if c.messages[idx].Pending() {
			c.messages[idx].State = types.SendStateFailed
			c.messages[idx].Err = cause.Error()
			changed = true
		}
		msg = c.messages[idx]
	}
	c.mu.Unlock()

	c.logger.Warn("send_failed", "conversation_id", c.conversationID, "correlation_id", correlationID, "error", cause)
	if changed {
		c.metrics.pending.Dec()
		c.metrics.sendFailures.Inc()
		if c.store != nil {
			if err := c.store.MarkOutboxFailed(correlationID, cause.Error()); err != nil {
				c.logger.Warn("outbox_write_failed", "correlation_id", correlationID, "error", err)
			}
		}
		c.emit(Event{Kind: EventFailed, Message: msg, Index: idx})
	}
	return msg, fmt.Errorf("send message: %w", cause)
}

// ReceiveConfirmed applies a server-confirmed message. A matching optimistic
// entry is replaced in place; an already known id is updated; anything else
// is appended.
func (c *Controller) ReceiveConfirmed(msg types.Message) Event {
	msg.State = types.SendStateConfirmed
	msg.Err = ""
	if msg.ConversationID == "" {
		msg.ConversationID = c.conversationID
	}

	c.mu.Lock()
	ev := Event{Message: msg}
	wasPending := false
	idx := c.indexByCorrelationLocked(msg.CorrelationID)
	switch {
	case idx >= 0:
		wasPending = c.messages[idx].Pending()
		c.messages[idx] = msg
		// The same confirmation may already have arrived without its
		// correlation id; keep the optimistic slot and drop the copy.
		if dup := c.indexByIDLocked(msg.ID, idx); dup >= 0 {
			c.messages = append(c.messages[:dup], c.messages[dup+1:]...)
			if dup < idx {
				idx--
			}
		}
		ev.Kind = EventReplaced
	default:
		idx = c.indexByIDLocked(msg.ID, -1)
		if idx >= 0 {
			if msg.CorrelationID == "" {
				msg.CorrelationID = c.messages[idx].CorrelationID
			}
			c.messages[idx] = msg
			ev.Kind = EventUpdated
		} else {
			c.messages = append(c.messages, msg)
			idx = len(c.messages) - 1
			ev.Kind = EventAppended
		}
	}
	ev.Index = idx
	ev.Message = msg
	c.mu.Unlock()

	c.trackPoll(msg)
	if wasPending {
		c.metrics.pending.Dec()
		c.metrics.sent.Inc()
	}
	if ev.Kind == EventAppended {
		if msg.SenderID != c.userID {
			c.metrics.received.Inc()
		}
		author := msg.SenderDisplay
		if author == "" {
			author = msg.SenderID
		}
		ev.Directive = c.anchor.OnNewMessage(author)
	}
	if c.store != nil {
		if msg.CorrelationID != "" && ev.Kind == EventReplaced {
			if err := c.store.MarkOutboxSent(msg.CorrelationID, msg.ID); err != nil {
				c.logger.Warn("outbox_write_failed", "correlation_id", msg.CorrelationID, "error", err)
			}
		}
		if err := c.store.SaveMessages(c.conversationID, []types.Message{msg}); err != nil {
			c.logger.Warn("cache_write_failed", "message_id", msg.ID, "error", err)
		}
	}
	c.emit(ev)
	return ev
}

// Edit replaces the content of the viewer's own confirmed message. The new
// content shows immediately and is restored if the server rejects it. No
// edit history is kept.
func (c *Controller) Edit(ctx context.Context, messageID, newContent string) (types.Message, error) {
	if strings.TrimSpace(newContent) == "" {
		return types.Message{}, ErrEmptyContent
	}

	c.mu.Lock()
	idx := c.indexByIDLocked(messageID, -1)
	if idx < 0 {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("edit %s: %w", messageID, ErrNotFound)
	}
	prev := c.messages[idx]
	if prev.IsSystem() || prev.SenderID != c.userID {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("edit %s: %w", messageID, ErrNotOwner)
	}
	if prev.State != types.SendStateConfirmed {
		c.mu.Unlock()
		return types.Message{}, fmt.Errorf("edit %s: %w", messageID, ErrNotConfirmed)
	}
	optimistic := prev
	optimistic.Content = newContent
	optimistic.Edited = true
	c.messages[idx] = optimistic
	c.mu.Unlock()
	c.emit(Event{Kind: EventUpdated, Message: optimistic, Index: idx})

	updated, err := c.service.UpdateMessage(ctx, messageID, types.UpdateRequest{Content: newContent, UserID: c.userID})
	if err == nil && updated == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		c.mu.Lock()
		idx = c.indexByIDLocked(messageID, -1)
		restored := idx >= 0 && c.messages[idx].Content == newContent
		if restored {
			c.messages[idx] = prev
		}
		c.mu.Unlock()
		c.metrics.edits.WithLabelValues("failed").Inc()
		c.logger.Warn("edit_failed", "message_id", messageID, "error", err)
		if restored {
			c.emit(Event{Kind: EventUpdated, Message: prev, Index: idx})
		}
		return prev, fmt.Errorf("edit message: %w", err)
	}

	result := *updated
	result.Edited = true
	if result.CorrelationID == "" {
		result.CorrelationID = prev.CorrelationID
	}
	c.metrics.edits.WithLabelValues("ok").Inc()
	ev := c.ReceiveConfirmed(result)
	return ev.Message, nil
}

// ApplySystemEvent inserts a local notice such as a membership change.
// System messages have no sender, never group and cannot be replied to.
func (c *Controller) ApplySystemEvent(text string) types.Message {
	id, err := core.GenerateGUID("sys")
	if err != nil {
		id = fmt.Sprintf("sys-%d", c.now().UnixNano())
	}
	msg := types.Message{
		ID:             id,
		ConversationID: c.conversationID,
		Content:        text,
		Type:           types.MessageTypeSystem,
		CreatedAt:      c.now(),
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	idx := len(c.messages) - 1
	c.mu.Unlock()
	c.emit(Event{Kind: EventAppended, Message: msg, Index: idx, Directive: c.anchor.OnNewMessage("")})
	return msg
}

// Load fetches history and merges in local state that the server list does
// not cover: system notices, messages confirmed by the live feed while the
// fetch was in flight, then unconfirmed sends in send order. When the fetch
// fails the cache is shown instead and the error is returned.
func (c *Controller) Load(ctx context.Context) error {
	server, fetchErr := c.service.FetchMessages(ctx, c.conversationID, c.userID)
	if fetchErr != nil {
		c.logger.Warn("fetch_failed", "conversation_id", c.conversationID, "error", fetchErr)
		if c.store == nil {
			return fmt.Errorf("fetch messages: %w", fetchErr)
		}
		cached, err := c.store.CachedMessages(types.MessageQueryOptions{ConversationID: c.conversationID})
		if err != nil {
			return errors.Join(fmt.Errorf("fetch messages: %w", fetchErr), fmt.Errorf("read cache: %w", err))
		}
		server = cached
	}

	confirmed := make(map[string]string, len(server))
	serverIDs := make(map[string]struct{}, len(server))
	for i := range server {
		server[i].State = types.SendStateConfirmed
		server[i].Err = ""
		serverIDs[server[i].ID] = struct{}{}
		if server[i].CorrelationID != "" {
			confirmed[server[i].CorrelationID] = server[i].ID
		}
	}

	var entries []types.OutboxEntry
	if c.store != nil {
		var err error
		entries, err = c.store.OpenOutbox(c.conversationID)
		if err != nil {
			c.logger.Warn("outbox_read_failed", "error", err)
		}
	}

	c.mu.Lock()
	merged := make([]types.Message, 0, len(server)+len(c.messages))
	merged = append(merged, server...)
	var unconfirmed []types.Message
	seen := make(map[string]struct{})
	for _, m := range c.messages {
		switch {
		case m.IsSystem():
			merged = append(merged, m)
		case m.State == types.SendStateConfirmed:
			_, known := serverIDs[m.ID]
			if _, ok := confirmed[m.CorrelationID]; ok && m.CorrelationID != "" {
				known = true
			}
			if !known {
				merged = append(merged, m)
			}
		default:
			seen[m.CorrelationID] = struct{}{}
			if _, ok := confirmed[m.CorrelationID]; !ok {
				unconfirmed = append(unconfirmed, m)
			}
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	merged = append(merged, unconfirmed...)
	var sentEntries []types.OutboxEntry
	for _, entry := range entries {
		if _, ok := confirmed[entry.CorrelationID]; ok {
			sentEntries = append(sentEntries, entry)
			continue
		}
		if _, ok := seen[entry.CorrelationID]; ok {
			continue
		}
		merged = append(merged, messageFromOutbox(entry, c.displayName))
	}
	c.messages = merged
	snapshot := make([]types.Message, len(merged))
	copy(snapshot, merged)
	c.mu.Unlock()

	if c.store != nil {
		for _, entry := range sentEntries {
			if err := c.store.MarkOutboxSent(entry.CorrelationID, confirmed[entry.CorrelationID]); err != nil {
				c.logger.Warn("outbox_write_failed", "correlation_id", entry.CorrelationID, "error", err)
			}
		}
		if fetchErr == nil {
			if err := c.store.SaveMessages(c.conversationID, server); err != nil {
				c.logger.Warn("cache_write_failed", "error", err)
			}
		}
	}

	for _, m := range snapshot {
		c.trackPoll(m)
	}
	if fetchErr == nil {
		c.refreshAllVotes(ctx, snapshot)
	} else {
		c.restoreCachedVotes(snapshot)
	}
	c.emit(Event{Kind: EventReset, Directive: c.anchor.Follow()})
	if fetchErr != nil {
		return fmt.Errorf("fetch messages: %w", fetchErr)
	}
	return nil
}

// ReplyTarget returns the message a reply points at.
func (c *Controller) ReplyTarget(msg types.Message) (types.Message, bool) {
	if msg.ReplyToID == nil {
		return types.Message{}, false
	}
	target, ok := c.Message(*msg.ReplyToID)
	if !ok || target.IsSystem() {
		return types.Message{}, false
	}
	return target, true
}

// ReplyPreview returns the sender and one-line summary of the replied
// message.
func (c *Controller) ReplyPreview(msg types.Message) (string, string, bool) {
	target, ok := c.ReplyTarget(msg)
	if !ok {
		return "", "", false
	}
	sender := target.SenderDisplay
	if sender == "" {
		sender = target.SenderID
	}
	return sender, content.Summary(content.Decode(target.Content)), true
}

// JumpToReply scrolls to the message replied to by messageID. When the
// target is not in the list yet the anchor retries once.
func (c *Controller) JumpToReply(messageID string) (scroll.Directive, bool) {
	msg, ok := c.Message(messageID)
	if !ok || msg.ReplyToID == nil {
		return scroll.Directive{}, false
	}
	return c.anchor.JumpTo(*msg.ReplyToID, c.Index)
}

func outboxEntry(msg types.Message, status types.OutboxStatus, errMsg string) types.OutboxEntry {
	return types.OutboxEntry{
		CorrelationID:  msg.CorrelationID,
		ConversationID: msg.ConversationID,
		TempID:         msg.ID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		ReplyToID:      msg.ReplyToID,
		Status:         status,
		ErrorMessage:   errMsg,
		CreatedAt:      msg.CreatedAt.UnixMilli(),
	}
}

// messageFromOutbox restores an unconfirmed send from a previous session. It
// comes back failed so the user decides whether to resend.
func messageFromOutbox(entry types.OutboxEntry, display string) types.Message {
	errMsg := entry.ErrorMessage
	if errMsg == "" {
		errMsg = "not confirmed before exit"
	}
	return types.Message{
		ID:             entry.TempID,
		CorrelationID:  entry.CorrelationID,
		ConversationID: entry.ConversationID,
		SenderID:       entry.SenderID,
		SenderDisplay:  display,
		Content:        entry.Content,
		Type:           entry.Type,
		CreatedAt:      time.UnixMilli(entry.CreatedAt),
		ReplyToID:      entry.ReplyToID,
		State:          types.SendStateFailed,
		Err:            errMsg,
	}
}
