package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adamavenir/huddle/internal/core"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case errors.Is(err, core.ErrNoServer):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: huddle config server_url https://chat.example.com")
	case errors.Is(err, errNoConversation):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: pass -c <conversation> or run: huddle config conversation <id>")
	case isSchemaError(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the local cache looks outdated. Delete it and it will be rebuilt from the server.")
	}

	return &reportedError{err: err}
}

// reportedError marks an error already printed by writeCommandError.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// isSchemaError checks if an error is a SQLite schema mismatch.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column")
}
