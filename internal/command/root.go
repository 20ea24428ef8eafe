package command

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const AppName = "huddle"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Huddle - terminal client for team conversations",
		Long:          "Huddle is a terminal chat client with polls, voice messages and attachments.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "config file (default ~/.config/huddle/config.yaml)")
	cmd.PersistentFlags().StringP("conversation", "c", "", "conversation id")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewChatCmd(),
		NewSendCmd(),
		NewHistoryCmd(),
		NewEditCmd(),
		NewVoteCmd(),
		NewDecodeCmd(),
		NewEncodeCmd(),
		NewConfigCmd(),
	)

	return cmd
}

func Execute() error {
	cmd := NewRootCmd(Version)
	err := cmd.Execute()
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
	}
	return err
}
