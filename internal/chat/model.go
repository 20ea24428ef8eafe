package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/recorder"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

// PinThreshold is how many lines from the bottom still count as following
// the conversation.
const PinThreshold = 3

// Options configure chat.
type Options struct {
	Controller *conversation.Controller
	// Bridge must be the one whose callbacks were wired into Controller,
	// its anchor, Player and the recorder sessions.
	Bridge   *Bridge
	Player   *audio.Player
	Recorder recorder.Device
	Uploader *media.Uploader
	Upload   types.UploadOptions
	Drops    *media.DropWatcher
	Title    string
	// Notifications enables desktop notifications for messages that arrive
	// while scrolled up.
	Notifications bool
	Logger        *slog.Logger
}

// Run starts the chat UI and blocks until it exits.
func Run(opts Options) error {
	model, err := NewModel(opts)
	if err != nil {
		return err
	}
	defer model.Close()
	fmt.Printf("\033]0;%s\007", model.title)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = program.Run()
	return err
}

// Model implements the chat UI.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl     *conversation.Controller
	bridge   *Bridge
	player   *audio.Player
	device   recorder.Device
	uploader *media.Uploader
	upload   types.UploadOptions
	drops    *media.DropWatcher
	logger   *slog.Logger
	title    string
	notify   bool
	now      func() time.Time

	viewport    viewport.Model
	input       textarea.Model
	zoneManager *zone.Manager
	width       int
	height      int
	status      string
	statusErr   bool

	replyToID   string
	editingID   string
	attachment  *media.Pick
	anchorState scroll.State
	// lineOffsets holds the first rendered line of each message.
	lineOffsets []int
	// mounted tracks audio sessions keyed by message id and item index.
	mounted map[string]struct{}

	rec            *recorder.Session
	recSnap        recorder.Snapshot
	confirmDiscard bool
}

// NewModel creates a chat model. Messages are loaded by Init.
func NewModel(opts Options) (*Model, error) {
	if opts.Controller == nil {
		return nil, errors.New("chat: controller required")
	}
	if opts.Bridge == nil {
		opts.Bridge = NewBridge()
	}
	if opts.Player == nil {
		opts.Player = audio.NewPlayer(audio.SimLoader{}, audio.WithListener(opts.Bridge.AudioChanged))
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Title == "" {
		opts.Title = "huddle · " + opts.Controller.ConversationID()
	}
	// The viewport reports lines, so the anchor must measure in lines too.
	opts.Controller.Anchor().SetThreshold(PinThreshold)
	ctx, cancel := context.WithCancel(context.Background())

	return &Model{
		ctx:         ctx,
		cancel:      cancel,
		ctrl:        opts.Controller,
		bridge:      opts.Bridge,
		player:      opts.Player,
		device:      opts.Recorder,
		uploader:    opts.Uploader,
		upload:      opts.Upload,
		drops:       opts.Drops,
		logger:      opts.Logger,
		title:       opts.Title,
		notify:      opts.Notifications,
		now:         time.Now,
		viewport:    viewport.New(0, 0),
		input:       newInputModel(),
		zoneManager: zone.New(),
		anchorState: opts.Controller.Anchor().State(),
		mounted:     make(map[string]struct{}),
	}, nil
}

func newInputModel() textarea.Model {
	input := textarea.New()
	input.Placeholder = "message, or /help"
	input.Prompt = "› "
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(1)
	input.KeyMap.InsertNewline.SetEnabled(false)
	input.FocusedStyle.Base = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Text = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
	input.BlurredStyle = input.FocusedStyle
	input.Focus()
	return input
}

// Init loads history and starts listening for engine events.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.bridge.wait(), m.loadCmd()}
	if m.drops != nil {
		cmds = append(cmds, waitForPick(m.drops))
	}
	return tea.Batch(cmds...)
}

// Close releases sessions, timers and in-flight work.
func (m *Model) Close() {
	m.cancel()
	if m.rec != nil {
		_ = m.rec.Close()
	}
	_ = m.player.Close()
	m.ctrl.Close()
	m.bridge.Close()
}

type loadedMsg struct{ err error }

func (m *Model) loadCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return loadedMsg{err: ctrl.Load(ctx)}
	}
}

func (m *Model) setStatus(format string, args ...any) {
	m.status = fmt.Sprintf(format, args...)
	m.statusErr = false
}

func (m *Model) setError(err error) {
	if err == nil {
		return
	}
	m.status = err.Error()
	m.statusErr = true
}
