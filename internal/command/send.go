package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a message",
		Long: `Send a message to the current conversation.

Text is the default. Use --kind for cards, for example:
  huddle send --kind poll "Lunch?" --option tacos --option pizza
  huddle send --kind location 52.37 4.89 --address "Dam Square"
  huddle send --attach ./report.pdf "numbers for Q3"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			replyRef, _ := cmd.Flags().GetString("reply")
			attach, _ := cmd.Flags().GetString("attach")

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

			var replyTo *string
			if replyRef != "" {
				if err := ctrl.Load(cmd.Context()); err != nil {
					ctx.Logger.Warn("history_load_failed", "error", err)
				}
				target, err := findMessage(ctrl.Messages(), replyRef)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				replyTo = &target.ID
			}

			var payload content.Payload
			caption := ""
			if attach != "" {
				payload, caption, err = uploadAttachment(cmd, ctx, attach, args)
			} else {
				payload, err = buildPayload(cmd, kind, args)
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}

			sent, err := ctrl.SendPayload(cmd.Context(), payload, replyTo)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			results := []types.Message{sent}
			if caption != "" {
				captioned, err := ctrl.Send(cmd.Context(), caption, types.MessageTypeText, nil)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				results = append(results, captioned)
			}

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(results)
			}
			now := time.Now()
			for _, msg := range results {
				fmt.Fprintln(cmd.OutOrStdout(), FormatMessage(msg, now, false))
			}
			return nil
		},
	}

	cmd.Flags().String("kind", "text", "payload kind: text, poll, location, contact, document, media")
	cmd.Flags().String("reply", "", "reply to message id")
	cmd.Flags().String("attach", "", "upload a local file and send it")
	addPayloadFlags(cmd)

	return cmd
}

// uploadAttachment uploads a local file. Images, video and audio become a
// media set carrying the caption; other files become a document and the
// caption is returned to be sent as its own message.
func uploadAttachment(cmd *cobra.Command, ctx *CommandContext, path string, args []string) (content.Payload, string, error) {
	if ctx.Config.UploadURL == "" {
		return nil, "", fmt.Errorf("attachments need upload_url in config")
	}
	uploader, err := media.NewUploader(ctx.Config.UploadURL, ctx.Config.Token)
	if err != nil {
		return nil, "", err
	}
	pick, err := media.PickFile(path)
	if err != nil {
		return nil, "", err
	}
	caption := strings.TrimSpace(strings.Join(args, " "))
	opts := types.UploadOptions{Folder: ctx.Config.UploadFolder, Tags: ctx.Config.UploadTags}
	if !ctx.JSONMode {
		fmt.Fprintf(cmd.ErrOrStderr(), "uploading %s (%s)\n", pick.Name, humanize.Bytes(uint64(pick.Size)))
	}

	switch pick.Class {
	case content.MediaClassImage, content.MediaClassVideo, content.MediaClassAudio:
		set, err := uploader.PrepareMedia(cmd.Context(), []string{pick.URI()}, caption, opts)
		return set, "", err
	default:
		doc, err := uploader.PrepareDocument(cmd.Context(), pick.URI(), opts)
		return doc, caption, err
	}
}
