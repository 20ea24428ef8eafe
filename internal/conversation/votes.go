package conversation

import (
	"context"
	"fmt"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/poll"
	"github.com/adamavenir/huddle/internal/types"
)

// VoteCache is implemented by stores that also keep confirmed poll votes.
type VoteCache interface {
	SavePollVotes(pollID string, votes []types.PollVote) error
	CachedPollVotes(pollID string) ([]types.PollVote, error)
}

// trackPoll registers confirmed poll messages with the tracker. Optimistic
// polls are skipped until the server assigns their id.
func (c *Controller) trackPoll(msg types.Message) {
	if msg.State != types.SendStateConfirmed || msg.IsSystem() {
		return
	}
	p, ok := content.Decode(msg.Content).(content.Poll)
	if !ok {
		return
	}
	c.polls.Track(msg.ID, msg.SenderID, p)
}

// Vote casts a vote optimistically and confirms it with the server. A
// network failure restores the previous selection.
func (c *Controller) Vote(ctx context.Context, pollID, optionID string) error {
	prev, err := c.polls.Cast(pollID, optionID)
	if err != nil {
		return err
	}
	c.emit(Event{Kind: EventPoll, PollID: pollID})

	votes, err := c.service.Vote(ctx, types.VoteRequest{MessageID: pollID, UserID: c.userID, OptionID: optionID})
	if err != nil {
		c.polls.Rollback(pollID, prev)
		c.metrics.votes.WithLabelValues("failed").Inc()
		c.metrics.voteRollbacks.Inc()
		c.logger.Warn("vote_rollback", "poll_id", pollID, "option_id", optionID, "error", err)
		c.emit(Event{Kind: EventPoll, PollID: pollID})
		return fmt.Errorf("vote: %w", err)
	}
	c.metrics.votes.WithLabelValues("ok").Inc()
	if votes != nil {
		if err := c.applyServerVotes(pollID, votes); err != nil {
			c.logger.Warn("vote_apply_failed", "poll_id", pollID, "error", err)
		}
	}
	c.emit(Event{Kind: EventPoll, PollID: pollID})
	return nil
}

// Retract removes the viewer's vote for one option of a multi-answer poll.
// The change is local only: the backend has no unvote call, so the server
// keeps counting the vote until it is replaced.
func (c *Controller) Retract(pollID, optionID string) error {
	if err := c.polls.Retract(pollID, optionID); err != nil {
		return err
	}
	c.logger.Debug("vote_retract_local", "poll_id", pollID, "option_id", optionID)
	c.emit(Event{Kind: EventPoll, PollID: pollID})
	return nil
}

// ToggleVote casts the option when not held and retracts it otherwise.
func (c *Controller) ToggleVote(ctx context.Context, pollID, optionID string) error {
	if c.polls.Selection(pollID).Has(optionID) {
		return c.Retract(pollID, optionID)
	}
	return c.Vote(ctx, pollID, optionID)
}

// PollResults returns the reconciled tallies for a poll message.
func (c *Controller) PollResults(pollID string) (poll.Results, error) {
	return c.polls.Results(pollID)
}

// RefreshVotes pulls the confirmed vote list for one poll.
func (c *Controller) RefreshVotes(ctx context.Context, pollID string) error {
	if !c.polls.Tracked(pollID) {
		return fmt.Errorf("refresh votes %s: %w", pollID, poll.ErrUnknownPoll)
	}
	votes, err := c.service.PollVotes(ctx, pollID)
	if err != nil {
		return fmt.Errorf("fetch votes: %w", err)
	}
	if err := c.applyServerVotes(pollID, votes); err != nil {
		return err
	}
	c.emit(Event{Kind: EventPoll, PollID: pollID})
	return nil
}

// ApplyServerVotes replaces a poll's confirmed votes with a list pushed by
// the live feed.
func (c *Controller) ApplyServerVotes(pollID string, votes []types.PollVote) error {
	if !c.polls.Tracked(pollID) {
		return fmt.Errorf("apply votes %s: %w", pollID, poll.ErrUnknownPoll)
	}
	if err := c.applyServerVotes(pollID, votes); err != nil {
		return err
	}
	c.emit(Event{Kind: EventPoll, PollID: pollID})
	return nil
}

func (c *Controller) applyServerVotes(pollID string, votes []types.PollVote) error {
	if err := c.polls.ApplyServer(pollID, votes); err != nil {
		return err
	}
	if vc, ok := c.store.(VoteCache); ok {
		if err := vc.SavePollVotes(pollID, votes); err != nil {
			c.logger.Warn("cache_write_failed", "poll_id", pollID, "error", err)
		}
	}
	return nil
}

func (c *Controller) refreshAllVotes(ctx context.Context, messages []types.Message) {
	for _, m := range messages {
		if !c.polls.Tracked(m.ID) {
			continue
		}
		votes, err := c.service.PollVotes(ctx, m.ID)
		if err != nil {
			c.logger.Warn("fetch_votes_failed", "poll_id", m.ID, "error", err)
			continue
		}
		if err := c.applyServerVotes(m.ID, votes); err != nil {
			c.logger.Warn("vote_apply_failed", "poll_id", m.ID, "error", err)
		}
	}
}

// restoreCachedVotes seeds tracked polls from the local cache while offline.
func (c *Controller) restoreCachedVotes(messages []types.Message) {
	vc, ok := c.store.(VoteCache)
	if !ok {
		return
	}
	for _, m := range messages {
		if !c.polls.Tracked(m.ID) {
			continue
		}
		votes, err := vc.CachedPollVotes(m.ID)
		if err != nil || len(votes) == 0 {
			continue
		}
		if err := c.polls.ApplyServer(m.ID, votes); err != nil {
			c.logger.Warn("vote_apply_failed", "poll_id", m.ID, "error", err)
		}
	}
}
