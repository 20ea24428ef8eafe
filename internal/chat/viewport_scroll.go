package chat

import (
	"strconv"
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/scroll"
	"github.com/charmbracelet/lipgloss"
)

func (m *Model) refreshViewport(scrollToBottom bool) {
	m.mountAudio()
	m.viewport.SetContent(m.renderMessages())
	if scrollToBottom {
		m.viewport.GotoBottom()
	} else if m.viewport.Height > 0 {
		maxOffset := m.viewport.TotalLineCount() - m.viewport.Height
		if maxOffset < 0 {
			maxOffset = 0
		}
		if m.viewport.YOffset > maxOffset {
			m.viewport.SetYOffset(maxOffset)
		}
	}
	m.syncAnchor()
}

// syncAnchor reports the viewport position to the scroll anchor and picks up
// its state.
func (m *Model) syncAnchor() {
	anchor := m.ctrl.Anchor()
	anchor.OnScroll(m.viewport.YOffset, m.viewport.Height, m.viewport.TotalLineCount())
	m.anchorState = anchor.State()
}

// applyDirective moves the viewport the way the anchor asked.
func (m *Model) applyDirective(d scroll.Directive) {
	switch d.Action {
	case scroll.ActionScrollToBottom:
		m.refreshViewport(true)
	case scroll.ActionScrollToIndex:
		m.anchorState = m.ctrl.Anchor().State()
		m.mountAudio()
		m.viewport.SetContent(m.renderMessages())
		if d.Index >= 0 && d.Index < len(m.lineOffsets) {
			m.viewport.SetYOffset(m.lineOffsets[d.Index])
		}
		m.syncAnchor()
	case scroll.ActionShowNewContent:
		m.refreshViewport(false)
	default:
		m.refreshViewport(m.ctrl.Anchor().Pinned())
	}
}

// followBottom is the "new content below" action.
func (m *Model) followBottom() {
	m.applyDirective(m.ctrl.Anchor().Follow())
}

func (m *Model) jumpToReply(messageID string) {
	d, ok := m.ctrl.JumpToReply(messageID)
	if !ok {
		m.setStatus("original message not loaded yet")
		return
	}
	m.applyDirective(d)
}

func (m *Model) renderNewContentBar() string {
	if m.anchorState.Pinned || len(m.anchorState.NewAuthors) == 0 {
		return ""
	}
	label := "↓ new messages from " + strings.Join(m.anchorState.NewAuthors, ", ") + " · ctrl+e"
	style := lipgloss.NewStyle().Foreground(contrastTextColor(accentColor)).Background(accentColor)
	return m.zoneManager.Mark("new-content", style.Render(label))
}

// mountAudio opens a playback session for every playable audio item and
// releases sessions whose message left the list or changed id.
func (m *Model) mountAudio() {
	seen := make(map[string]struct{})
	for _, msg := range m.ctrl.Messages() {
		set, ok := content.Decode(msg.Content).(content.MediaSet)
		if !ok {
			continue
		}
		for i, item := range set.Items {
			if item.Class() != content.MediaClassAudio || !item.Available() {
				continue
			}
			key := audioKey(msg.ID, i)
			seen[key] = struct{}{}
			if _, ok := m.mounted[key]; ok {
				continue
			}
			if _, err := m.player.Mount(m.ctx, key, item.DisplayURI(), waveformWidth); err != nil {
				m.logger.Warn("audio_mount_failed", "message_id", msg.ID, "error", err)
			}
			m.mounted[key] = struct{}{}
		}
	}
	for key := range m.mounted {
		if _, ok := seen[key]; ok {
			continue
		}
		if err := m.player.Unmount(key); err != nil {
			m.logger.Debug("audio_unmount_failed", "key", key, "error", err)
		}
		delete(m.mounted, key)
	}
}

func audioKey(messageID string, item int) string {
	return messageID + "#" + strconv.Itoa(item)
}

func audioKeyMessage(key string) string {
	if idx := strings.LastIndex(key, "#"); idx >= 0 {
		return key[:idx]
	}
	return key
}
