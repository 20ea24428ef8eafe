package poll

import (
	"errors"
	"fmt"
	"sync"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
)

var (
	ErrUnknownPoll       = errors.New("unknown poll")
	ErrUnknownOption     = errors.New("unknown poll option")
	ErrAlreadyVoted      = errors.New("option already selected")
	ErrNotVoted          = errors.New("option not selected")
	ErrRetractNotAllowed = errors.New("poll does not allow retracting votes")
)

type pollState struct {
	creatorID string
	poll      content.Poll
	server    []types.PollVote
	local     Selection
	hasVoted  bool
}

// Tracker owns poll vote state for a single conversation.
type Tracker struct {
	mu     sync.Mutex
	userID string
	polls  map[string]*pollState
}

// NewTracker creates a tracker for the given viewer.
func NewTracker(userID string) *Tracker {
	return &Tracker{userID: userID, polls: make(map[string]*pollState)}
}

// Track registers or updates a poll definition. Local selections for options
// that no longer exist are dropped.
func (t *Tracker) Track(pollID, creatorID string, poll content.Poll) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		t.polls[pollID] = &pollState{creatorID: creatorID, poll: poll}
		return
	}
	state.creatorID = creatorID
	state.poll = poll
	if state.local == nil {
		return
	}
	for id := range state.local {
		if _, exists := poll.Option(id); !exists {
			delete(state.local, id)
		}
	}
}

// Forget drops a poll, e.g. when its message is replaced by non-poll content.
func (t *Tracker) Forget(pollID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.polls, pollID)
}

// Tracked reports whether pollID is a known poll.
func (t *Tracker) Tracked(pollID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.polls[pollID]
	return ok
}

// ApplyServer replaces the confirmed vote list. Once the server agrees with
// the local selection the optimistic state is released.
func (t *Tracker) ApplyServer(pollID string, votes []types.PollVote) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return fmt.Errorf("apply votes %s: %w", pollID, ErrUnknownPoll)
	}
	state.server = append([]types.PollVote(nil), votes...)
	confirmed := serverSelection(state.server, t.userID)
	if len(confirmed) > 0 {
		state.hasVoted = true
	}
	if state.local != nil && state.local.equal(confirmed) {
		state.local = nil
	}
	return nil
}

// Cast applies a vote optimistically and returns the selection to restore if
// the network call fails. Single-answer polls replace any held option.
func (t *Tracker) Cast(pollID, optionID string) (Selection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return nil, fmt.Errorf("cast vote %s: %w", pollID, ErrUnknownPoll)
	}
	if _, exists := state.poll.Option(optionID); !exists {
		return nil, fmt.Errorf("cast vote %s/%s: %w", pollID, optionID, ErrUnknownOption)
	}

	current := state.current(t.userID)
	if current.Has(optionID) {
		return nil, ErrAlreadyVoted
	}
	prev := state.local.Clone()

	next := Selection{}
	if state.poll.AllowMultiple {
		next = current.Clone()
	}
	next[optionID] = struct{}{}
	state.local = next
	state.hasVoted = true
	return prev, nil
}

// Retract removes an optimistic vote. It is local only; no network call is
// made for unvoting.
func (t *Tracker) Retract(pollID, optionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return fmt.Errorf("retract vote %s: %w", pollID, ErrUnknownPoll)
	}
	if !state.poll.AllowMultiple {
		return ErrRetractNotAllowed
	}
	current := state.current(t.userID)
	if !current.Has(optionID) {
		return ErrNotVoted
	}
	next := current.Clone()
	delete(next, optionID)
	state.local = next
	return nil
}

// Rollback restores the selection captured by Cast.
func (t *Tracker) Rollback(pollID string, prev Selection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return
	}
	state.local = prev.Clone()
	if len(state.current(t.userID)) == 0 && len(serverSelection(state.server, t.userID)) == 0 {
		state.hasVoted = false
	}
}

// Results returns the reconciled display state.
func (t *Tracker) Results(pollID string) (Results, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return Results{}, fmt.Errorf("results %s: %w", pollID, ErrUnknownPoll)
	}
	return Reconcile(pollID, state.creatorID, t.userID, state.poll, state.server, state.local, state.hasVoted), nil
}

// Selection returns the viewer's current option set.
func (t *Tracker) Selection(pollID string) Selection {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.polls[pollID]
	if !ok {
		return nil
	}
	return state.current(t.userID).Clone()
}

func (s *pollState) current(userID string) Selection {
	if s.local != nil {
		return s.local
	}
	return serverSelection(s.server, userID)
}
