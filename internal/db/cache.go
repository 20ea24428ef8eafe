package db

import (
	"database/sql"
	"time"

	"github.com/adamavenir/huddle/internal/types"
)

// Cache is the sqlite-backed message and outbox store used by the
// conversation controller.
type Cache struct {
	db *sql.DB
}

// NewCache wraps an open database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// OpenCache opens the database at path and wraps it.
func OpenCache(path string) (*Cache, error) {
	conn, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewCache(conn), nil
}

// DB exposes the underlying handle.
func (c *Cache) DB() *sql.DB {
	return c.db
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) SaveMessages(conversationID string, messages []types.Message) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := UpsertMessages(tx, conversationID, messages); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (c *Cache) CachedMessages(opts types.MessageQueryOptions) ([]types.Message, error) {
	return GetMessages(c.db, opts)
}

func (c *Cache) UpsertOutbox(entry types.OutboxEntry) error {
	return UpsertOutbox(c.db, entry)
}

func (c *Cache) MarkOutboxSent(correlationID, serverID string) error {
	return MarkOutboxSent(c.db, correlationID, serverID)
}

func (c *Cache) MarkOutboxFailed(correlationID, errMsg string) error {
	return MarkOutboxFailed(c.db, correlationID, errMsg)
}

func (c *Cache) OpenOutbox(conversationID string) ([]types.OutboxEntry, error) {
	return GetOpenOutbox(c.db, conversationID)
}

func (c *Cache) SavePollVotes(pollID string, votes []types.PollVote) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := ReplacePollVotes(tx, pollID, votes); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (c *Cache) CachedPollVotes(pollID string) ([]types.PollVote, error) {
	return GetPollVotes(c.db, pollID)
}

// Prune drops delivered outbox entries older than age.
func (c *Cache) Prune(age time.Duration) (int64, error) {
	return PruneSentOutbox(c.db, time.Now().Add(-age))
}

// LastConversation returns the conversation the user last opened.
func (c *Cache) LastConversation() (string, error) {
	return GetConfig(c.db, ConfigLastConversation)
}

// SetLastConversation remembers the conversation the user opened.
func (c *Cache) SetLastConversation(id string) error {
	return SetConfig(c.db, ConfigLastConversation, id)
}
