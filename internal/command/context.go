package command

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/db"
	"github.com/adamavenir/huddle/internal/logging"
	"github.com/adamavenir/huddle/internal/transport"
	"github.com/spf13/cobra"
)

var errNoConversation = errors.New("no conversation selected")

// CommandContext provides shared command resources.
type CommandContext struct {
	Config         *core.Config
	ConfigPath     string
	Cache          *db.Cache
	Client         *transport.Client
	Logger         *slog.Logger
	JSONMode       bool
	ConversationID string

	logCloser io.Closer
}

// GetContext loads config, logging and the local cache for a command.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	return newContext(cmd, cmd.ErrOrStderr())
}

// newContext is GetContext with an explicit default log destination. The
// chat UI passes io.Discard so log lines never land on the alt screen.
func newContext(cmd *cobra.Command, logFallback io.Writer) (*CommandContext, error) {
	configPath, _ := cmd.Flags().GetString("config")
	conversationFlag, _ := cmd.Flags().GetString("conversation")
	jsonMode, _ := cmd.Flags().GetBool("json")

	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	closer := logging.Init(cfg.LogLevel, cfg.LogSink, logFallback)
	ctx := &CommandContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     slog.Default(),
		JSONMode:   jsonMode,
		logCloser:  closer,
	}

	if cfg.CachePath != "" {
		cache, err := db.OpenCache(cfg.CachePath)
		if err != nil {
			ctx.Close()
			return nil, err
		}
		ctx.Cache = cache
	}

	ctx.ConversationID = strings.TrimSpace(conversationFlag)
	if ctx.ConversationID == "" {
		ctx.ConversationID = cfg.Conversation
	}
	if ctx.ConversationID == "" && ctx.Cache != nil {
		last, err := ctx.Cache.LastConversation()
		if err != nil {
			ctx.Logger.Warn("last_conversation_read_failed", "error", err)
		}
		ctx.ConversationID = last
	}
	return ctx, nil
}

// Connect builds the API client. It fails when no server or conversation is
// configured.
func (c *CommandContext) Connect() error {
	if err := c.Config.RequireServer(); err != nil {
		return err
	}
	if c.ConversationID == "" {
		return errNoConversation
	}
	client, err := transport.NewClient(c.Config.ServerURL, transport.Options{
		Token:     c.Config.Token,
		SendRate:  c.Config.SendRate,
		SendBurst: c.Config.SendBurst,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.Client = client
	if c.Cache != nil {
		if err := c.Cache.SetLastConversation(c.ConversationID); err != nil {
			c.Logger.Warn("last_conversation_write_failed", "error", err)
		}
	}
	return nil
}

// NewController builds a conversation controller over the client and cache.
// Fields already set in opts are kept.
func (c *CommandContext) NewController(opts conversation.Options) (*conversation.Controller, error) {
	if c.Client == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}
	opts.ConversationID = c.ConversationID
	opts.UserID = c.Config.UserID
	opts.DisplayName = c.Config.DisplayName
	opts.Service = c.Client
	if c.Cache != nil {
		opts.Store = c.Cache
	}
	if opts.Logger == nil {
		opts.Logger = c.Logger
	}
	return conversation.New(opts)
}

// Close releases the cache and log sink.
func (c *CommandContext) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.logCloser != nil {
		_ = c.logCloser.Close()
	}
}
