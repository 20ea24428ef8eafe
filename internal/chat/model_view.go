package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/recorder"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const (
	inputMaxHeight = 6
	inputPadding   = 1
)

func (m *Model) View() string {
	lines := []string{m.viewport.View()}
	if bar := m.renderNewContentBar(); bar != "" {
		lines = append(lines, bar)
	}
	if compose := m.renderComposeContext(); compose != "" {
		lines = append(lines, compose)
	}
	if rec := m.renderRecorder(); rec != "" {
		lines = append(lines, rec)
	}
	lines = append(lines, m.input.View(), m.renderStatusLine())
	return m.zoneManager.Scan(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) resize() {
	if m.width == 0 || m.height == 0 {
		return
	}
	inputWidth := m.width - inputPadding
	if inputWidth < 1 {
		inputWidth = 1
	}
	m.input.SetWidth(inputWidth)
	lineCount := m.input.LineCount()
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > inputMaxHeight {
		lineCount = inputMaxHeight
	}
	m.input.SetHeight(lineCount)

	chrome := m.input.Height() + 1
	if m.renderNewContentBar() != "" {
		chrome++
	}
	if m.renderComposeContext() != "" {
		chrome++
	}
	if m.rec != nil {
		chrome++
	}
	pinned := m.ctrl.Anchor().Pinned()
	m.viewport.Width = m.width
	m.viewport.Height = m.height - chrome
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	m.refreshViewport(pinned)
}

// renderComposeContext shows what the next send attaches to: a reply target,
// a message being edited or a picked file.
func (m *Model) renderComposeContext() string {
	style := lipgloss.NewStyle().Foreground(metaColor)
	cancel := m.zoneManager.Mark("reply-cancel", lipgloss.NewStyle().Foreground(errorColor).Render(" [x]"))
	switch {
	case m.editingID != "":
		return style.Render("editing #"+core.ShortID(m.editingID, shortIDLength)) + cancel
	case m.replyToID != "":
		target := m.replyToID
		label := "replying to #" + core.ShortID(target, shortIDLength)
		if sender, summary, ok := m.ctrl.ReplyPreview(types.Message{ReplyToID: &target}); ok {
			label = fmt.Sprintf("replying to %s: %s", sender, summary)
		}
		return style.Render(ansi.Truncate(label, m.width-5, "…")) + cancel
	case m.attachment != nil:
		return style.Render("📎 "+m.attachment.Name) + cancel
	}
	return ""
}

func (m *Model) renderRecorder() string {
	if m.rec == nil {
		return ""
	}
	snap := m.recSnap
	dot := lipgloss.NewStyle().Foreground(recordingColor).Render("●")
	label := "REC"
	if snap.State == recorder.StatePaused {
		dot = lipgloss.NewStyle().Foreground(metaColor).Render("❚❚")
		label = "PAUSED"
	}
	var levels strings.Builder
	for _, level := range snap.Levels {
		levels.WriteRune(levelGlyph(level))
	}
	hint := "ctrl+p pause · ctrl+s send · ctrl+x discard"
	if m.confirmDiscard {
		hint = "ctrl+x again to discard · esc to keep"
	}
	parts := []string{
		dot,
		label,
		core.FormatDuration(snap.Elapsed),
		lipgloss.NewStyle().Foreground(recordingColor).Render(levels.String()),
		lipgloss.NewStyle().Foreground(metaColor).Render(hint),
	}
	return ansi.Truncate(strings.Join(parts, " "), m.width, "…")
}

func (m *Model) renderStatusLine() string {
	color := statusColor
	if m.statusErr {
		color = errorColor
	}
	left := m.status
	if left == "" {
		left = m.title
	}
	if m.width <= 0 {
		return lipgloss.NewStyle().Foreground(color).Render(left)
	}
	right := ""
	if playing := m.player.Playing(); len(playing) > 0 {
		right = fmt.Sprintf("♪ %d playing", len(playing))
	}
	gap := m.width - ansi.StringWidth(left) - ansi.StringWidth(right)
	if gap < 1 {
		left = ansi.Truncate(left, m.width-ansi.StringWidth(right)-2, "…")
		gap = 1
	}
	return lipgloss.NewStyle().Foreground(color).Render(left + strings.Repeat(" ", gap) + right)
}
