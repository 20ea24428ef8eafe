package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adamavenir/huddle/internal/types"
)

const outboxColumns = `client_id, conversation_id, temp_id, sender_id, content, message_type, reply_to, status, error, server_id, created_at`

// UpsertOutbox records or replaces an outgoing message.
func UpsertOutbox(db DBTX, entry types.OutboxEntry) error {
	if entry.CorrelationID == "" {
		return fmt.Errorf("outbox entry requires a correlation id")
	}
	status := entry.Status
	if status == "" {
		status = types.OutboxQueued
	}
	createdAt := entry.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}
	_, err := db.Exec(`
		INSERT INTO huddle_outbox (`+outboxColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
		  content = excluded.content,
		  message_type = excluded.message_type,
		  reply_to = excluded.reply_to,
		  status = excluded.status,
		  error = excluded.error,
		  server_id = COALESCE(excluded.server_id, huddle_outbox.server_id),
		  updated_at = excluded.updated_at
	`, entry.CorrelationID, entry.ConversationID, entry.TempID, entry.SenderID, entry.Content,
		string(entry.Type), nullableValue(entry.ReplyToID), string(status), nullIfEmpty(entry.ErrorMessage),
		nullIfEmpty(entry.ServerID), createdAt, time.Now().UnixMilli())
	return err
}

// MarkOutboxSent records the server id for a delivered entry.
func MarkOutboxSent(db DBTX, correlationID, serverID string) error {
	_, err := db.Exec(`
		UPDATE huddle_outbox SET status = ?, server_id = ?, error = NULL, updated_at = ?
		WHERE client_id = ?
	`, string(types.OutboxSent), nullIfEmpty(serverID), time.Now().UnixMilli(), correlationID)
	return err
}

// MarkOutboxFailed records a delivery failure.
func MarkOutboxFailed(db DBTX, correlationID, errMsg string) error {
	_, err := db.Exec(`
		UPDATE huddle_outbox SET status = ?, error = ?, updated_at = ?
		WHERE client_id = ?
	`, string(types.OutboxFailed), errMsg, time.Now().UnixMilli(), correlationID)
	return err
}

// GetOpenOutbox returns undelivered entries for a conversation, oldest first.
func GetOpenOutbox(db DBTX, conversationID string) ([]types.OutboxEntry, error) {
	rows, err := db.Query(fmt.Sprintf(`
		SELECT %s FROM huddle_outbox
		WHERE conversation_id = ? AND status != ?
		ORDER BY created_at ASC, client_id ASC
	`, outboxColumns), conversationID, string(types.OutboxSent))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.OutboxEntry
	for rows.Next() {
		entry, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetOutboxEntry returns an entry by correlation id.
func GetOutboxEntry(db DBTX, correlationID string) (*types.OutboxEntry, error) {
	row := db.QueryRow(fmt.Sprintf(`SELECT %s FROM huddle_outbox WHERE client_id = ?`, outboxColumns), correlationID)
	entry, err := scanOutbox(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// PruneSentOutbox deletes delivered entries last touched before cutoff.
func PruneSentOutbox(db DBTX, cutoff time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM huddle_outbox WHERE status = ? AND updated_at < ?`,
		string(types.OutboxSent), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanOutbox(row scanner) (types.OutboxEntry, error) {
	var (
		entry    types.OutboxEntry
		msgType  string
		replyTo  sql.NullString
		status   string
		errMsg   sql.NullString
		serverID sql.NullString
	)
	if err := row.Scan(&entry.CorrelationID, &entry.ConversationID, &entry.TempID, &entry.SenderID,
		&entry.Content, &msgType, &replyTo, &status, &errMsg, &serverID, &entry.CreatedAt); err != nil {
		return types.OutboxEntry{}, err
	}
	entry.Type = types.MessageType(msgType)
	entry.ReplyToID = nullStringPtr(replyTo)
	entry.Status = types.OutboxStatus(status)
	entry.ErrorMessage = errMsg.String
	entry.ServerID = serverID.String
	return entry, nil
}
