package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/chat"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/recorder"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/adamavenir/huddle/internal/transport"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [conversation]",
		Short: "Interactive chat mode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeCommandError(cmd, fmt.Errorf("--json not supported for interactive chat"))
			}
			if len(args) > 0 {
				if err := cmd.Flags().Set("conversation", args[0]); err != nil {
					return writeCommandError(cmd, err)
				}
			}
			noNotify, _ := cmd.Flags().GetBool("no-notify")
			pruneAge, _ := cmd.Flags().GetDuration("prune")

			ctx, err := newContext(cmd, io.Discard)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()
			if err := ctx.Connect(); err != nil {
				return writeCommandError(cmd, err)
			}
			cfg := ctx.Config
			logger := ctx.Logger

			if ctx.Cache != nil && pruneAge > 0 {
				if pruned, err := ctx.Cache.Prune(pruneAge); err != nil {
					logger.Warn("outbox_prune_failed", "error", err)
				} else if pruned > 0 {
					logger.Info("outbox_pruned", "rows", pruned)
				}
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			registry := prometheus.NewRegistry()
			bridge := chat.NewBridge()
			anchor := scroll.New(
				scroll.WithThreshold(chat.PinThreshold),
				scroll.OnChange(bridge.AnchorChanged),
				scroll.OnDirective(bridge.Directive),
			)
			ctrl, err := ctx.NewController(conversation.Options{
				Anchor:  anchor,
				Metrics: conversation.NewMetrics(registry),
				OnEvent: bridge.ControllerEvent,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			player := audio.NewPlayer(audio.SimLoader{},
				audio.WithListener(bridge.AudioChanged),
				audio.WithLogger(logger),
			)

			var uploader *media.Uploader
			if cfg.UploadURL != "" {
				uploader, err = media.NewUploader(cfg.UploadURL, cfg.Token)
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}
			var drops *media.DropWatcher
			if cfg.DropFolder != "" {
				drops, err = media.NewDropWatcher(cfg.DropFolder, 0)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				defer drops.Close()
			}

			if cfg.WebsocketURL != "" {
				feed, err := transport.NewFeed(cfg.WebsocketURL, ctx.ConversationID, cfg.UserID, cfg.Token, ctrl.FeedHandler(), logger)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				go func() {
					if err := feed.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("feed_stopped", "error", err)
					}
				}()
			}
			if cfg.MetricsAddress != "" {
				serveMetrics(runCtx, cfg.MetricsAddress, registry, logger)
			}

			err = chat.Run(chat.Options{
				Controller:    ctrl,
				Bridge:        bridge,
				Player:        player,
				Recorder:      recorder.FileDevice{Dir: cfg.RecordingsDir},
				Uploader:      uploader,
				Upload:        types.UploadOptions{Folder: cfg.UploadFolder, Tags: cfg.UploadTags},
				Drops:         drops,
				Notifications: cfg.Notifications && !noNotify,
				Logger:        logger,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().Bool("no-notify", false, "disable desktop notifications")
	cmd.Flags().Duration("prune", 7*24*time.Hour, "drop delivered outbox entries older than this on start (0 keeps all)")

	return cmd
}
