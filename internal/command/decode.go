package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/spf13/cobra"
)

type decodedPayload struct {
	Kind    content.Kind    `json:"kind"`
	Type    string          `json:"messageType"`
	Summary string          `json:"summary"`
	Payload content.Payload `json:"payload"`
}

// NewDecodeCmd creates the decode command.
func NewDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [content]",
		Short: "Show how a raw content string is interpreted",
		Long:  "Decode a raw message content field. Reads stdin when no argument is given or the argument is -.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readContentArg(cmd, args)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			payload := content.Decode(raw)
			decoded := decodedPayload{
				Kind:    payload.Kind(),
				Type:    string(content.MessageTypeFor(payload)),
				Summary: content.Summary(payload),
				Payload: payload,
			}

			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(decoded)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "kind: %s\n", decoded.Kind)
			fmt.Fprintf(out, "type: %s\n", decoded.Type)
			fmt.Fprintf(out, "summary: %s\n", decoded.Summary)
			body, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintf(out, "payload: %s\n", body)
			return nil
		},
	}

	return cmd
}

// NewEncodeCmd creates the encode command.
func NewEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <kind> [args...]",
		Short: "Print the wire content for a payload",
		Long: `Encode a payload into the raw content string sent to the server.

Kinds: text, poll, location, contact, document, media.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(cmd, args[0], args[1:])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			raw := content.Encode(payload)
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"content":     raw,
					"messageType": string(content.MessageTypeFor(payload)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	addPayloadFlags(cmd)

	return cmd
}

func readContentArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
