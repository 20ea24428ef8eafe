package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			last, _ := cmd.Flags().GetInt("last")
			sinceExpr, _ := cmd.Flags().GetString("since")
			offline, _ := cmd.Flags().GetBool("offline")
			full, _ := cmd.Flags().GetBool("full")

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			if last <= 0 {
				last = ctx.Config.PageSize
			}

			now := time.Now()
			var since time.Time
			if sinceExpr != "" {
				since, err = core.ParseTimeExpression(sinceExpr, now)
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}

			var messages []types.Message
			if offline {
				messages, err = cachedHistory(ctx)
			} else {
				messages, err = liveHistory(cmd, ctx)
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}
			messages = filterHistory(messages, since, last)

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(messages)
			}
			out := cmd.OutOrStdout()
			if len(messages) == 0 {
				fmt.Fprintln(out, "No messages")
				return nil
			}
			for _, msg := range messages {
				fmt.Fprintln(out, FormatMessage(msg, now, full))
			}
			return nil
		},
	}

	cmd.Flags().Int("last", 0, "show last N messages (default page_size)")
	cmd.Flags().String("since", "", "only messages after a time (e.g. 2h, yesterday, 2026-05-01)")
	cmd.Flags().Bool("offline", false, "read the local cache without contacting the server")
	cmd.Flags().Bool("full", false, "do not truncate long messages")

	return cmd
}

func cachedHistory(ctx *CommandContext) ([]types.Message, error) {
	if ctx.Cache == nil {
		return nil, fmt.Errorf("no local cache configured")
	}
	if ctx.ConversationID == "" {
		return nil, errNoConversation
	}
	return ctx.Cache.CachedMessages(types.MessageQueryOptions{ConversationID: ctx.ConversationID})
}

// liveHistory loads through the controller so pending and failed sends from
// the outbox show up alongside confirmed history. When the server is
// unreachable the cached view is returned with a warning.
func liveHistory(cmd *cobra.Command, ctx *CommandContext) ([]types.Message, error) {
	ctrl, err := ctx.NewController(conversation.Options{})
	if err != nil {
		return nil, err
	}
	defer ctrl.Close()
	if err := ctrl.Load(cmd.Context()); err != nil {
		messages := ctrl.Messages()
		if len(messages) == 0 {
			return nil, err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v (showing cached messages)\n", err)
		return messages, nil
	}
	return ctrl.Messages(), nil
}

func filterHistory(messages []types.Message, since time.Time, last int) []types.Message {
	if !since.IsZero() {
		kept := messages[:0:0]
		for _, msg := range messages {
			if msg.CreatedAt.After(since) {
				kept = append(kept, msg)
			}
		}
		messages = kept
	}
	if last > 0 && len(messages) > last {
		messages = messages[len(messages)-last:]
	}
	return messages
}
