package poll

import (
	"sort"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
)

// Tally is the displayed result for one option.
type Tally struct {
	OptionID string
	Text     string
	Count    int
	Percent  float64
	Mine     bool
	Voters   []string
}

// Results is the display state of a poll for one viewer.
type Results struct {
	PollID        string
	Question      string
	AllowMultiple bool
	Anonymous     bool
	Options       []Tally
	Total         int
	// Visible is false when counts must be hidden from this viewer.
	Visible bool
	Voted   bool
}

// Selection is the viewer's locally held option set. A nil Selection means
// there is no optimistic state and the server list is authoritative.
type Selection map[string]struct{}

// Clone copies the selection; nil stays nil.
func (s Selection) Clone() Selection {
	if s == nil {
		return nil
	}
	out := make(Selection, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Has reports whether the option is selected.
func (s Selection) Has(optionID string) bool {
	_, ok := s[optionID]
	return ok
}

// IDs returns the selected option ids in sorted order.
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Selection) equal(other Selection) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// serverSelection returns the viewer's own votes as the server reports them.
func serverSelection(votes []types.PollVote, userID string) Selection {
	sel := Selection{}
	for _, vote := range votes {
		if vote.UserID == userID {
			sel[vote.OptionID] = struct{}{}
		}
	}
	return sel
}

// Reconcile merges server-confirmed votes with the viewer's optimistic
// selection. The viewer's own server votes are replaced by the local
// selection when one is held, so a vote is counted once whether or not the
// server has caught up yet.
func Reconcile(pollID, creatorID, userID string, poll content.Poll, server []types.PollVote, local Selection, hasVoted bool) Results {
	mine := local
	if mine == nil {
		mine = serverSelection(server, userID)
	}

	counts := make(map[string]int, len(poll.Options))
	voters := make(map[string][]string, len(poll.Options))
	known := make(map[string]struct{}, len(poll.Options))
	for _, opt := range poll.Options {
		known[opt.ID] = struct{}{}
	}
	for _, vote := range server {
		if _, ok := known[vote.OptionID]; !ok {
			continue
		}
		if vote.UserID == userID {
			continue
		}
		counts[vote.OptionID]++
		voters[vote.OptionID] = append(voters[vote.OptionID], vote.UserID)
	}
	for id := range mine {
		if _, ok := known[id]; !ok {
			continue
		}
		counts[id]++
		voters[id] = append(voters[id], userID)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	voted := hasVoted || len(mine) > 0
	results := Results{
		PollID:        pollID,
		Question:      poll.Question,
		AllowMultiple: poll.AllowMultiple,
		Anonymous:     poll.Anonymous,
		Options:       make([]Tally, 0, len(poll.Options)),
		Total:         total,
		Visible:       userID == creatorID || voted,
		Voted:         voted,
	}
	for _, opt := range poll.Options {
		tally := Tally{
			OptionID: opt.ID,
			Text:     opt.Text,
			Count:    counts[opt.ID],
			Percent:  Percentage(counts[opt.ID], total),
			Mine:     mine.Has(opt.ID),
		}
		if !poll.Anonymous {
			tally.Voters = voters[opt.ID]
		}
		results.Options = append(results.Options, tally)
	}
	return results
}

// Percentage returns count/total as 0-100, and 0 when there are no votes.
func Percentage(count, total int) float64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	return float64(count) * 100 / float64(total)
}
