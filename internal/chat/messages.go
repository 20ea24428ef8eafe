package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const shortIDLength = 6

// renderMessages draws the whole list and records where each message starts
// so scroll-to-index directives can be applied.
func (m *Model) renderMessages() string {
	messages := m.ctrl.Messages()
	flags := core.AvatarFlags(messages)
	m.lineOffsets = m.lineOffsets[:0]
	if len(messages) == 0 {
		return lipgloss.NewStyle().Foreground(metaColor).Render("no messages yet")
	}

	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	var blocks []string
	line := 0
	for i, msg := range messages {
		showAvatar := flags[i]
		block := m.renderMessage(msg, showAvatar, width)
		if showAvatar && i > 0 {
			block = "\n" + block
		}
		m.lineOffsets = append(m.lineOffsets, line)
		line += lipgloss.Height(block)
		blocks = append(blocks, block)
	}
	return strings.Join(blocks, "\n")
}

func (m *Model) renderMessage(msg types.Message, showAvatar bool, width int) string {
	if msg.IsSystem() {
		style := lipgloss.NewStyle().Foreground(metaColor).Italic(true).Width(width).Align(lipgloss.Center)
		return style.Render(msg.Content)
	}

	var lines []string
	if showAvatar {
		lines = append(lines, m.renderByline(msg))
	}
	if sender, summary, ok := m.ctrl.ReplyPreview(msg); ok {
		ctx := lipgloss.NewStyle().Foreground(metaColor).Render(fmt.Sprintf("  ↪ %s: %s", sender, summary))
		lines = append(lines, m.zoneManager.Mark("reply-"+msg.ID, ctx))
	}

	bodyWidth := width - 2
	if bodyWidth < 10 {
		bodyWidth = 10
	}
	body := m.renderPayload(msg, content.Decode(msg.Content), bodyWidth)
	bodyStyle := lipgloss.NewStyle().Foreground(textColor).PaddingLeft(2)
	if msg.Pending() {
		bodyStyle = bodyStyle.Foreground(metaColor)
	}
	if m.anchorState.Highlighted != "" && m.anchorState.Highlighted == msg.ID {
		bodyStyle = bodyStyle.Background(highlightBg)
	}
	lines = append(lines, bodyStyle.Render(body))
	lines = append(lines, m.renderFooter(msg))
	return strings.Join(lines, "\n")
}

func (m *Model) renderByline(msg types.Message) string {
	name := msg.SenderDisplay
	if name == "" {
		name = msg.SenderID
	}
	color := senderColor(msg.SenderID, m.ctrl.UserID())
	avatar := lipgloss.NewStyle().Foreground(contrastTextColor(color)).Background(color).Render(" " + core.AvatarFor(msg.SenderID, name) + " ")
	sender := lipgloss.NewStyle().Foreground(color).Bold(true).Render(name)
	ts := lipgloss.NewStyle().Foreground(metaColor).Render(core.FormatTimestamp(msg.CreatedAt, m.now()))
	return avatar + " " + sender + " " + ts
}

func (m *Model) renderFooter(msg types.Message) string {
	meta := lipgloss.NewStyle().Foreground(metaColor)
	parts := []string{m.zoneManager.Mark("id-"+msg.ID, meta.Render("#"+core.ShortID(msg.ID, shortIDLength)))}
	if msg.Edited {
		parts = append(parts, meta.Render("(edited)"))
	}
	switch {
	case msg.Pending():
		parts = append(parts, lipgloss.NewStyle().Foreground(pendingColor).Render("sending…"))
	case msg.Failed():
		failed := fmt.Sprintf("failed: %s · /resend %s", msg.Err, core.ShortID(msg.ID, shortIDLength))
		parts = append(parts, lipgloss.NewStyle().Foreground(errorColor).Render(failed))
	}
	return "  " + strings.Join(parts, " ")
}

func (m *Model) renderPayload(msg types.Message, p content.Payload, width int) string {
	switch v := p.(type) {
	case content.PlainText:
		return ansi.Wrap(highlightText(v.Text), width, "")
	case content.MediaSet:
		return m.renderMediaSet(msg, v, width)
	case content.Poll:
		return m.renderPoll(msg, v, width)
	case content.Contact:
		return renderContact(v)
	case content.Location:
		return renderLocation(v)
	case content.Document:
		return renderDocument(v)
	}
	return ""
}

func (m *Model) renderMediaSet(msg types.Message, set content.MediaSet, width int) string {
	var lines []string
	for i, item := range set.Items {
		if !item.Available() {
			lines = append(lines, lipgloss.NewStyle().Foreground(metaColor).Render("[ "+content.Placeholder+" ]"))
			continue
		}
		switch item.Class() {
		case content.MediaClassAudio:
			lines = append(lines, m.renderAudio(audioKey(msg.ID, i)))
		case content.MediaClassVideo:
			lines = append(lines, "🎬 "+ansi.Truncate(item.DisplayURI(), width-3, "…"))
		case content.MediaClassFile:
			lines = append(lines, "📎 "+ansi.Truncate(item.DisplayURI(), width-3, "…"))
		default:
			lines = append(lines, "🖼  "+ansi.Truncate(item.DisplayURI(), width-4, "…"))
		}
	}
	if set.Caption != "" {
		lines = append(lines, ansi.Wrap(set.Caption, width, ""))
	}
	return strings.Join(lines, "\n")
}

func renderContact(c content.Contact) string {
	lines := []string{"👤 " + lipgloss.NewStyle().Bold(true).Render(c.Name)}
	if role := strings.TrimSpace(strings.Join(nonEmpty(c.JobTitle, c.Organization), " · ")); role != "" {
		lines = append(lines, "   "+role)
	}
	for _, phone := range c.Phones {
		lines = append(lines, "   ☎ "+phone)
	}
	for _, email := range c.Emails {
		lines = append(lines, "   ✉ "+email)
	}
	return strings.Join(lines, "\n")
}

func renderLocation(l content.Location) string {
	coords := fmt.Sprintf("%.5f, %.5f", l.Lat, l.Lon)
	if l.Address == "" {
		return "📍 " + coords
	}
	return "📍 " + l.Address + "\n   " + lipgloss.NewStyle().Foreground(metaColor).Render(coords)
}

func renderDocument(d content.Document) string {
	line := "📄 " + content.DocumentLabel(d)
	if uri := d.FetchURI(); content.ValidURI(uri) {
		line += "\n   " + lipgloss.NewStyle().Foreground(metaColor).Render(uri)
	} else {
		line += "\n   " + lipgloss.NewStyle().Foreground(metaColor).Render(content.Placeholder)
	}
	return line
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
