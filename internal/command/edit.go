package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/spf13/cobra"
)

// NewEditCmd creates the edit command.
func NewEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <msgid> <text...>",
		Short: "Edit one of your messages",
		Args:  cobra.MinimumNArgs(2),
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

			target, err := findMessage(ctrl.Messages(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			updated, err := ctrl.Edit(cmd.Context(), target.ID, strings.Join(args[1:], " "))
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(updated)
			}
			fmt.Fprintln(cmd.OutOrStdout(), FormatMessage(updated, time.Now(), false))
			return nil
		},
	}

	return cmd
}
