package conversation

import (
	"github.com/adamavenir/huddle/internal/types"
)

// FeedHandler routes live feed frames into a controller. It satisfies
// transport.Handler.
type FeedHandler struct {
	c *Controller
}

// FeedHandler returns the live feed adapter for c.
func (c *Controller) FeedHandler() FeedHandler {
	return FeedHandler{c: c}
}

func (h FeedHandler) HandleMessage(msg types.Message) {
	if msg.ConversationID != "" && msg.ConversationID != h.c.conversationID {
		return
	}
	h.c.ReceiveConfirmed(msg)
}

func (h FeedHandler) HandleSystem(text string) {
	h.c.ApplySystemEvent(text)
}

func (h FeedHandler) HandleVotes(messageID string, votes []types.PollVote) {
	if err := h.c.ApplyServerVotes(messageID, votes); err != nil {
		h.c.logger.Debug("feed_votes_ignored", "poll_id", messageID, "error", err)
	}
}
