package chat

import (
	"errors"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/media"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/adamavenir/huddle/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

// opResultMsg reports a finished background operation.
type opResultMsg struct {
	status string
	err    error
}

type pickMsg struct{ pick media.Pick }

type pickErrMsg struct{ err error }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.MouseMsg:
		return m.handleMouseMsg(msg)
	case loadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}
		m.refreshViewport(true)
		return m, nil
	case controllerEventMsg:
		cmd := m.handleControllerEvent(msg.event)
		return m, tea.Batch(cmd, m.bridge.wait())
	case directiveMsg:
		m.applyDirective(msg.directive)
		return m, m.bridge.wait()
	case anchorStateMsg:
		m.anchorState = msg.state
		m.refreshViewport(false)
		return m, m.bridge.wait()
	case audioMsg:
		m.refreshViewport(m.ctrl.Anchor().Pinned())
		return m, m.bridge.wait()
	case recorderMsg:
		m.recSnap = msg.snapshot
		m.resize()
		return m, m.bridge.wait()
	case pickMsg:
		pick := msg.pick
		m.attachment = &pick
		m.setStatus("attached %s · enter to send, esc to drop", pick.Name)
		return m, waitForPick(m.drops)
	case pickErrMsg:
		m.setError(msg.err)
		return m, waitForPick(m.drops)
	case opResultMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else if msg.status != "" {
			m.setStatus("%s", msg.status)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleControllerEvent(ev conversation.Event) tea.Cmd {
	m.applyDirective(ev.Directive)
	if ev.Kind != conversation.EventAppended || ev.Directive.Action != scroll.ActionShowNewContent {
		return nil
	}
	msg := ev.Message
	if !m.notify || msg.IsSystem() || msg.SenderID == m.ctrl.UserID() {
		return nil
	}
	title, logger := m.title, m.logger
	return func() tea.Msg {
		if err := notifyMessage(title, msg); err != nil {
			logger.Debug("notify_failed", "error", err)
		}
		return nil
	}
}

func (m *Model) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
		if handled, cmd := m.handleMouseClick(msg); handled {
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.syncAnchor()
	return m, cmd
}

func (m *Model) handleMouseClick(msg tea.MouseMsg) (bool, tea.Cmd) {
	if m.replyToID != "" && m.zoneManager.Get("reply-cancel").InBounds(msg) {
		m.clearCompose()
		return true, nil
	}
	if m.zoneManager.Get("new-content").InBounds(msg) {
		m.followBottom()
		return true, nil
	}
	for _, message := range m.ctrl.Messages() {
		if m.zoneManager.Get("reply-"+message.ID).InBounds(msg) {
			m.jumpToReply(message.ID)
			return true, nil
		}
		if m.zoneManager.Get("id-"+message.ID).InBounds(msg) {
			m.startReply(message)
			return true, nil
		}
		for key := range m.mounted {
			if audioKeyMessage(key) == message.ID && m.zoneManager.Get("audio-"+key).InBounds(msg) {
				return true, m.toggleAudio(key)
			}
		}
		if optionID, ok := m.clickedPollOption(message.ID, msg); ok {
			return true, m.voteCmd(message.ID, optionID, true)
		}
	}
	return false, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		if m.rec != nil && m.confirmDiscard {
			m.confirmDiscard = false
			m.setStatus("still recording")
			return m, nil
		}
		m.clearCompose()
		return m, nil
	case tea.KeyEnter:
		return m, m.submit()
	case tea.KeyCtrlJ:
		m.input.InsertString("\n")
		m.resize()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyCtrlU, tea.KeyCtrlD:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.syncAnchor()
		return m, cmd
	case tea.KeyCtrlE:
		m.followBottom()
		return m, nil
	case tea.KeyCtrlP:
		if m.rec != nil {
			m.setError(m.rec.Toggle())
			return m, nil
		}
	case tea.KeyCtrlS:
		if m.rec != nil {
			return m, m.stopRecording()
		}
	case tea.KeyCtrlX:
		if m.rec != nil {
			return m, m.discardRecording()
		}
	case tea.KeyUp:
		if m.input.Value() == "" && m.prefillLastEdit() {
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.resize()
	return m, cmd
}

// submit sends the composed input: a slash command, an edit, an attachment
// with its caption, or a text message.
func (m *Model) submit() tea.Cmd {
	value := m.input.Value()
	if handled, cmd := m.handleSlashCommand(value); handled {
		return cmd
	}
	if m.editingID != "" {
		id := m.editingID
		m.resetInput()
		m.editingID = ""
		return m.editCmd(id, value)
	}
	if m.attachment != nil {
		pick := *m.attachment
		m.attachment = nil
		m.resetInput()
		return m.sendAttachment(pick, value)
	}
	if value == "" {
		return nil
	}
	replyTo := m.replyTarget()
	staged, err := m.ctrl.Stage(value, types.MessageTypeText, replyTo)
	if err != nil {
		m.setError(err)
		return nil
	}
	m.resetInput()
	m.replyToID = ""
	return m.deliverCmd(staged.CorrelationID)
}

func (m *Model) deliverCmd(correlationID string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		_, err := ctrl.Deliver(ctx, correlationID)
		if err != nil {
			return opResultMsg{err: err}
		}
		return nil
	}
}

func (m *Model) editCmd(messageID, body string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		if _, err := ctrl.Edit(ctx, messageID, body); err != nil {
			return opResultMsg{err: err}
		}
		return opResultMsg{status: "edited"}
	}
}

func (m *Model) voteCmd(pollID, optionID string, toggle bool) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		var err error
		if toggle {
			err = ctrl.ToggleVote(ctx, pollID, optionID)
		} else {
			err = ctrl.Vote(ctx, pollID, optionID)
		}
		return opResultMsg{err: err}
	}
}

func (m *Model) resendCmd(correlationID string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		if _, err := ctrl.Resend(ctx, correlationID); err != nil {
			return opResultMsg{err: err}
		}
		return opResultMsg{status: "resent"}
	}
}

func (m *Model) toggleAudio(key string) tea.Cmd {
	session, ok := m.player.Session(key)
	if !ok {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		err := session.Toggle(ctx)
		if errors.Is(err, audio.ErrNotReady) || errors.Is(err, audio.ErrClosed) {
			return opResultMsg{err: errors.New("audio unavailable")}
		}
		return opResultMsg{err: err}
	}
}

func waitForPick(w *media.DropWatcher) tea.Cmd {
	if w == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case pick, ok := <-w.Picks():
			if !ok {
				return nil
			}
			return pickMsg{pick: pick}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			return pickErrMsg{err: err}
		}
	}
}

func (m *Model) clearCompose() {
	m.replyToID = ""
	m.editingID = ""
	m.attachment = nil
	m.resetInput()
	m.status = ""
}

func (m *Model) resetInput() {
	m.input.Reset()
	m.resize()
}

func (m *Model) replyTarget() *string {
	if m.replyToID == "" {
		return nil
	}
	id := m.replyToID
	return &id
}
