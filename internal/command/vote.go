package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/poll"
	"github.com/spf13/cobra"
)

// NewVoteCmd creates the vote command.
func NewVoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vote <poll-id> [option]",
		Short: "Vote in a poll, or show its results",
		Long: `Vote in a poll. The option may be its id, its 1-based position or its text.
Without an option the current results are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			ctrl, err := ctx.NewController(conversation.Options{})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctrl.Close()
			if err := ctrl.Load(cmd.Context()); err != nil {
				return writeCommandError(cmd, err)
			}

			msg, err := findMessage(ctrl.Messages(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			p, ok := content.Decode(msg.Content).(content.Poll)
			if !ok {
				return writeCommandError(cmd, fmt.Errorf("#%s is not a poll", stripHash(args[0])))
			}
			if err := ctrl.RefreshVotes(cmd.Context(), msg.ID); err != nil {
				ctx.Logger.Warn("vote_refresh_failed", "poll_id", msg.ID, "error", err)
			}

			if len(args) == 2 {
				optionID, err := resolveOption(p, args[1])
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if err := ctrl.Vote(cmd.Context(), msg.ID, optionID); err != nil {
					return writeCommandError(cmd, err)
				}
			}

			results, err := ctrl.PollResults(msg.ID)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}

	return cmd
}

// resolveOption accepts an option id, a 1-based position or the option text.
func resolveOption(p content.Poll, ref string) (string, error) {
	if opt, ok := p.Option(ref); ok {
		return opt.ID, nil
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(p.Options) {
		return p.Options[n-1].ID, nil
	}
	for _, opt := range p.Options {
		if strings.EqualFold(opt.Text, ref) {
			return opt.ID, nil
		}
	}
	return "", fmt.Errorf("unknown option %q", ref)
}

func printResults(out io.Writer, results poll.Results) {
	fmt.Fprintf(out, "%s📊 %s%s\n", bold, results.Question, reset)
	for i, tally := range results.Options {
		mark := " "
		if tally.Mine {
			mark = "✓"
		}
		line := fmt.Sprintf("  %s %d. %s", mark, i+1, tally.Text)
		if results.Visible {
			line += fmt.Sprintf("  %s%d (%.0f%%)%s", dim, tally.Count, tally.Percent, reset)
			if !results.Anonymous && len(tally.Voters) > 0 {
				line += fmt.Sprintf(" %s%s%s", gray, strings.Join(tally.Voters, ", "), reset)
			}
		}
		fmt.Fprintln(out, line)
	}
	if !results.Visible {
		fmt.Fprintf(out, "%svote to see results%s\n", dim, reset)
		return
	}
	fmt.Fprintf(out, "%s%d votes%s\n", dim, results.Total, reset)
}
