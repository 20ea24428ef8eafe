package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/types"
)

// messageColumns is the explicit column list for SELECT queries.
const messageColumns = `id, conversation_id, client_id, sender_id, sender_display, content, message_type, created_at, reply_to, edited`

// UpsertMessages stores confirmed messages for a conversation. Pending,
// failed and system messages are local state and are skipped.
func UpsertMessages(db DBTX, conversationID string, messages []types.Message) error {
	for _, msg := range messages {
		if msg.ID == "" || msg.State != types.SendStateConfirmed || msg.IsSystem() {
			continue
		}
		convID := msg.ConversationID
		if convID == "" {
			convID = conversationID
		}
		_, err := db.Exec(`
			INSERT INTO huddle_messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
			  client_id = COALESCE(excluded.client_id, huddle_messages.client_id),
			  sender_display = COALESCE(excluded.sender_display, huddle_messages.sender_display),
			  content = excluded.content,
			  message_type = excluded.message_type,
			  reply_to = excluded.reply_to,
			  edited = excluded.edited
		`, msg.ID, convID, nullIfEmpty(msg.CorrelationID), msg.SenderID, nullIfEmpty(msg.SenderDisplay),
			msg.Content, string(msg.Type), msg.CreatedAt.UnixMilli(), nullableValue(msg.ReplyToID), boolToInt(msg.Edited))
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", msg.ID, err)
		}
	}
	return nil
}

// GetMessages returns cached messages in chronological order. With a limit,
// the most recent messages are returned.
func GetMessages(db DBTX, opts types.MessageQueryOptions) ([]types.Message, error) {
	var conditions []string
	var params []any
	if opts.ConversationID != "" {
		conditions = append(conditions, "conversation_id = ?")
		params = append(params, opts.ConversationID)
	}
	if opts.Before != nil {
		conditions = append(conditions, "created_at < ?")
		params = append(params, opts.Before.UnixMilli())
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var query string
	if opts.Limit > 0 {
		query = fmt.Sprintf(`
			SELECT %s FROM (
				SELECT %s FROM huddle_messages%s
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			) ORDER BY created_at ASC, id ASC
		`, messageColumns, messageColumns, whereClause)
		params = append(params, opts.Limit)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM huddle_messages%s ORDER BY created_at ASC, id ASC`, messageColumns, whereClause)
	}

	rows, err := db.Query(query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessage returns a cached message by id or correlation id.
func GetMessage(db DBTX, id string) (*types.Message, error) {
	row := db.QueryRow(fmt.Sprintf(`SELECT %s FROM huddle_messages WHERE id = ? OR client_id = ? LIMIT 1`, messageColumns), id, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CountMessages returns the number of cached messages in a conversation.
func CountMessages(db DBTX, conversationID string) (int64, error) {
	var count int64
	err := db.QueryRow("SELECT COUNT(*) FROM huddle_messages WHERE conversation_id = ?", conversationID).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (types.Message, error) {
	var (
		msg           types.Message
		clientID      sql.NullString
		senderDisplay sql.NullString
		msgType       string
		createdAt     int64
		replyTo       sql.NullString
		edited        int
	)
	if err := row.Scan(&msg.ID, &msg.ConversationID, &clientID, &msg.SenderID, &senderDisplay,
		&msg.Content, &msgType, &createdAt, &replyTo, &edited); err != nil {
		return types.Message{}, err
	}
	msg.CorrelationID = clientID.String
	msg.SenderDisplay = senderDisplay.String
	msg.Type = types.MessageType(msgType)
	msg.CreatedAt = time.UnixMilli(createdAt)
	msg.ReplyToID = nullStringPtr(replyTo)
	msg.Edited = edited != 0
	return msg, nil
}

func scanMessages(rows *sql.Rows) ([]types.Message, error) {
	var messages []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
