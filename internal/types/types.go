package types

import "time"

// MessageType is the transport-level kind of a message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeAudio MessageType = "AUDIO"
	MessageTypeFile  MessageType = "FILE"
	// MessageTypeSystem never crosses the wire; it marks locally inserted
	// membership/system notices.
	MessageTypeSystem MessageType = "SYSTEM"
)

// Valid reports whether t is a type the backend accepts.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeFile:
		return true
	}
	return false
}

// SendState tracks the local delivery state of a message.
type SendState string

const (
	SendStateConfirmed SendState = ""
	SendStatePending   SendState = "pending"
	SendStateFailed    SendState = "failed"
)

// Message represents a conversation message.
type Message struct {
	ID             string      `json:"id"`
	CorrelationID  string      `json:"clientId,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
	SenderID       string      `json:"senderId"`
	SenderDisplay  string      `json:"senderDisplay,omitempty"`
	Content        string      `json:"content"`
	Type           MessageType `json:"messageType"`
	CreatedAt      time.Time   `json:"createdAt"`
	ReplyToID      *string     `json:"replyToId,omitempty"`
	Edited         bool        `json:"edited,omitempty"`
	State          SendState   `json:"-"`
	Err            string      `json:"-"`
}

// IsSystem reports whether the message is a local system notice.
func (m Message) IsSystem() bool {
	return m.Type == MessageTypeSystem
}

// Pending reports whether the message is an unconfirmed optimistic echo.
func (m Message) Pending() bool {
	return m.State == SendStatePending
}

// Failed reports whether the send for this message failed.
func (m Message) Failed() bool {
	return m.State == SendStateFailed
}

// SendRequest is the payload for the message transport sendMessage call.
type SendRequest struct {
	ConversationID string      `json:"conversationId"`
	CorrelationID  string      `json:"clientId,omitempty"`
	Content        string      `json:"content"`
	SenderID       string      `json:"senderId"`
	Type           MessageType `json:"messageType"`
	ReplyToID      *string     `json:"replyToId,omitempty"`
}

// UpdateRequest is the payload for the updateMessage call.
type UpdateRequest struct {
	Content string `json:"content"`
	UserID  string `json:"userId"`
}

// VoteRequest casts a poll vote on the backend.
type VoteRequest struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
	OptionID  string `json:"optionId"`
}

// PollVote is a server-confirmed vote.
type PollVote struct {
	MessageID string `json:"messageId"`
	OptionID  string `json:"optionId"`
	UserID    string `json:"userId"`
}

// OutboxStatus represents the lifecycle of an outgoing message.
type OutboxStatus string

const (
	OutboxQueued OutboxStatus = "queued"
	OutboxFailed OutboxStatus = "failed"
	OutboxSent   OutboxStatus = "sent"
)

// OutboxEntry is a locally persisted outgoing message keyed by correlation id.
type OutboxEntry struct {
	CorrelationID  string
	ConversationID string
	TempID         string
	SenderID       string
	Content        string
	Type           MessageType
	ReplyToID      *string
	Status         OutboxStatus
	ErrorMessage   string
	ServerID       string
	CreatedAt      int64
}

// MessageQueryOptions controls cached message queries.
type MessageQueryOptions struct {
	ConversationID string
	Limit          int
	Before         *time.Time
}

// UploadOptions describes a media upload.
type UploadOptions struct {
	Folder       string   `json:"folder"`
	Tags         []string `json:"tags,omitempty"`
	ResourceType string   `json:"resourceType"`
}

// UploadResult is the durable location of an uploaded file.
type UploadResult struct {
	SecureURL string `json:"secureUrl"`
	PublicID  string `json:"publicId"`
}
