package conversation

import (
	"context"

	"github.com/adamavenir/huddle/internal/types"
)

// MessageService is the backend chat API.
type MessageService interface {
	SendMessage(ctx context.Context, req types.SendRequest) (*types.Message, error)
	FetchMessages(ctx context.Context, conversationID, userID string) ([]types.Message, error)
	UpdateMessage(ctx context.Context, messageID string, req types.UpdateRequest) (*types.Message, error)
	// Vote records a vote and returns the poll's confirmed vote list.
	Vote(ctx context.Context, req types.VoteRequest) ([]types.PollVote, error)
	PollVotes(ctx context.Context, messageID string) ([]types.PollVote, error)
}

// Store caches messages and the outbox locally. A nil Store disables caching.
type Store interface {
	SaveMessages(conversationID string, messages []types.Message) error
	CachedMessages(opts types.MessageQueryOptions) ([]types.Message, error)
	UpsertOutbox(entry types.OutboxEntry) error
	MarkOutboxSent(correlationID, serverID string) error
	MarkOutboxFailed(correlationID, errMsg string) error
	OpenOutbox(conversationID string) ([]types.OutboxEntry, error)
}
