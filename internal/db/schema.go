package db

import (
	"database/sql"
	"fmt"
)

const schemaSQL = `
-- Confirmed conversation history
CREATE TABLE IF NOT EXISTS huddle_messages (
  id TEXT PRIMARY KEY,                 -- server-assigned message id
  conversation_id TEXT NOT NULL,
  client_id TEXT,                      -- correlation id echoed by the server
  sender_id TEXT NOT NULL,
  sender_display TEXT,
  content TEXT NOT NULL,               -- encoded payload
  message_type TEXT NOT NULL,          -- TEXT, IMAGE, AUDIO, FILE
  created_at INTEGER NOT NULL,         -- unix ms
  reply_to TEXT,                       -- parent message id
  edited INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_huddle_messages_conversation ON huddle_messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_huddle_messages_client ON huddle_messages(client_id);

-- Outgoing messages keyed by correlation id
CREATE TABLE IF NOT EXISTS huddle_outbox (
  client_id TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  temp_id TEXT NOT NULL,
  sender_id TEXT NOT NULL,
  content TEXT NOT NULL,
  message_type TEXT NOT NULL,
  reply_to TEXT,
  status TEXT NOT NULL DEFAULT 'queued', -- queued, failed, sent
  error TEXT,
  server_id TEXT,
  created_at INTEGER NOT NULL,          -- unix ms
  updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_huddle_outbox_conversation ON huddle_outbox(conversation_id, status);

-- Confirmed poll votes, replaced wholesale per poll
CREATE TABLE IF NOT EXISTS huddle_poll_votes (
  message_id TEXT NOT NULL,
  option_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  PRIMARY KEY (message_id, option_id, user_id)
);

-- Local key/value settings
CREATE TABLE IF NOT EXISTS huddle_config (
  key TEXT PRIMARY KEY,
  value TEXT
);
`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// InitSchema initializes the cache schema.
func InitSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := initSchemaWith(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func initSchemaWith(db DBTX) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return err
	}
	return migrateSchema(db)
}

// SchemaExists reports whether the cache schema is present.
func SchemaExists(db *sql.DB) (bool, error) {
	row := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='huddle_messages'
	`)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return name != "", nil
}

type tableColumn struct {
	Name    string
	ColType string
	NotNull int
	PK      int
}

func getTableInfo(db DBTX, table string) ([]tableColumn, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []tableColumn
	for rows.Next() {
		var col tableColumn
		var cid int
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &col.Name, &col.ColType, &col.NotNull, &defaultValue, &col.PK); err != nil {
			return nil, err
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func hasColumn(columns []tableColumn, name string) bool {
	for _, col := range columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// migrateSchema brings caches written by older builds up to date.
func migrateSchema(db DBTX) error {
	messageColumns, err := getTableInfo(db, "huddle_messages")
	if err != nil {
		return err
	}
	if len(messageColumns) > 0 && !hasColumn(messageColumns, "sender_display") {
		if _, err := db.Exec("ALTER TABLE huddle_messages ADD COLUMN sender_display TEXT"); err != nil {
			return err
		}
	}

	outboxColumns, err := getTableInfo(db, "huddle_outbox")
	if err != nil {
		return err
	}
	if len(outboxColumns) > 0 && !hasColumn(outboxColumns, "updated_at") {
		if _, err := db.Exec("ALTER TABLE huddle_outbox ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}
