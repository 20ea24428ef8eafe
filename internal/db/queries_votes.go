package db

import (
	"fmt"

	"github.com/adamavenir/huddle/internal/types"
)

// ReplacePollVotes swaps the stored vote list for a poll.
func ReplacePollVotes(db DBTX, pollID string, votes []types.PollVote) error {
	if _, err := db.Exec("DELETE FROM huddle_poll_votes WHERE message_id = ?", pollID); err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}
	for _, v := range votes {
		if v.UserID == "" || v.OptionID == "" {
			continue
		}
		if _, err := db.Exec(`
			INSERT OR IGNORE INTO huddle_poll_votes (message_id, option_id, user_id)
			VALUES (?, ?, ?)
		`, pollID, v.OptionID, v.UserID); err != nil {
			return fmt.Errorf("insert vote: %w", err)
		}
	}
	return nil
}

// GetPollVotes returns the stored votes for a poll.
func GetPollVotes(db DBTX, pollID string) ([]types.PollVote, error) {
	rows, err := db.Query(`
		SELECT message_id, option_id, user_id FROM huddle_poll_votes
		WHERE message_id = ?
		ORDER BY user_id, option_id
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []types.PollVote
	for rows.Next() {
		var v types.PollVote
		if err := rows.Scan(&v.MessageID, &v.OptionID, &v.UserID); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
