package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/adamavenir/huddle/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	maxBackoff     = 30 * time.Second
)

// Event types carried on the live feed.
const (
	EventMessage = "message"
	EventUpdated = "message_updated"
	EventSystem  = "system"
	EventVotes   = "votes"
)

// Envelope is one frame of the live feed.
type Envelope struct {
	Type           string           `json:"type"`
	ConversationID string           `json:"conversationId,omitempty"`
	Message        *types.Message   `json:"message,omitempty"`
	Text           string           `json:"text,omitempty"`
	MessageID      string           `json:"messageId,omitempty"`
	Votes          []types.PollVote `json:"votes,omitempty"`
}

// Handler receives feed frames. Calls are made from the read goroutine.
type Handler interface {
	HandleMessage(msg types.Message)
	HandleSystem(text string)
	HandleVotes(messageID string, votes []types.PollVote)
}

// Feed subscribes to live conversation events over a websocket and keeps the
// connection alive until its context is cancelled.
type Feed struct {
	endpoint string
	header   http.Header
	dialer   *websocket.Dialer
	handler  Handler
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewFeed builds a feed for one conversation. wsURL is the socket endpoint;
// conversation and user ids are passed as query parameters.
func NewFeed(wsURL, conversationID, userID, token string, handler Handler, logger *slog.Logger) (*Feed, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket url must use ws:// or wss://")
	}
	q := u.Query()
	q.Set("conversationId", conversationID)
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		endpoint: u.String(),
		header:   header,
		dialer:   &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		handler:  handler,
		logger:   logger,
	}, nil
}

// Connected reports whether a socket is currently open.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Run dials and reads until ctx is done, reconnecting with backoff.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed_disconnected", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.endpoint, f.header)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()
	f.logger.Debug("feed_connected")

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.pingLoop(conn, done)
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			_ = conn.Close()
		case <-done:
		}
	}()

	err = f.readLoop(conn)
	close(done)
	wg.Wait()
	_ = conn.Close()

	f.mu.Lock()
	f.conn = nil
	f.connected = false
	f.mu.Unlock()
	return err
}

func (f *Feed) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.logger.Warn("feed_bad_frame", "error", err)
			continue
		}
		f.dispatch(env)
	}
}

func (f *Feed) dispatch(env Envelope) {
	switch env.Type {
	case EventMessage, EventUpdated:
		if env.Message != nil {
			f.handler.HandleMessage(*env.Message)
		}
	case EventSystem:
		if env.Text != "" {
			f.handler.HandleSystem(env.Text)
		}
	case EventVotes:
		if env.MessageID != "" {
			f.handler.HandleVotes(env.MessageID, env.Votes)
		}
	default:
		f.logger.Debug("feed_unknown_event", "type", env.Type)
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
