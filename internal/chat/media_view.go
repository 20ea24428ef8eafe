package chat

import (
	"fmt"
	"strings"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/types"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// waveformWidth is the pixel-equivalent width handed to the waveform
// generator; each bar renders as one cell.
const waveformWidth = 96

const pollBarWidth = 16

var levelGlyphs = []rune("▁▂▃▄▅▆▇█")

func levelGlyph(level float64) rune {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	return levelGlyphs[int(level*float64(len(levelGlyphs)-1)+0.5)]
}

func (m *Model) renderAudio(key string) string {
	meta := lipgloss.NewStyle().Foreground(metaColor)
	session, ok := m.player.Session(key)
	if !ok {
		return meta.Render("🎙 loading…")
	}
	snap := session.Snapshot()
	switch snap.State {
	case audio.StateLoading:
		return meta.Render("🎙 loading…")
	case audio.StateUnavailable, audio.StateClosed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("🎙 audio unavailable")
	}

	button := "▶"
	if snap.State == audio.StatePlaying {
		button = "⏸"
	}
	played := int(snap.Progress()*float64(len(snap.Waveform)) + 0.5)
	var wave strings.Builder
	filled := lipgloss.NewStyle().Foreground(barFilledColor)
	empty := lipgloss.NewStyle().Foreground(barEmptyColor)
	for i, level := range snap.Waveform {
		glyph := string(levelGlyph(level))
		if i < played {
			wave.WriteString(filled.Render(glyph))
		} else {
			wave.WriteString(empty.Render(glyph))
		}
	}
	timing := fmt.Sprintf("%s / %s", core.FormatDuration(snap.Position), core.FormatDuration(snap.Duration))
	if snap.Rate != 1 {
		timing += fmt.Sprintf(" %gx", snap.Rate)
	}
	line := lipgloss.NewStyle().Foreground(accentColor).Render(button) + " " + wave.String() + " " + meta.Render(timing)
	return m.zoneManager.Mark("audio-"+key, line)
}

// renderPoll draws tallies once the poll is tracked. Until it is confirmed
// only the question and options are shown.
func (m *Model) renderPoll(msg types.Message, p content.Poll, width int) string {
	results, err := m.ctrl.PollResults(msg.ID)
	if err != nil {
		lines := []string{"📊 " + lipgloss.NewStyle().Bold(true).Render(p.Question)}
		for _, opt := range p.Options {
			lines = append(lines, "  · "+opt.Text)
		}
		return strings.Join(lines, "\n")
	}
	lines := []string{"📊 " + lipgloss.NewStyle().Bold(true).Render(results.Question)}
	labelWidth := width - pollBarWidth - 16
	if labelWidth < 8 {
		labelWidth = 8
	}
	for _, tally := range results.Options {
		mark := "[ ]"
		if !results.AllowMultiple {
			mark = "( )"
		}
		if tally.Mine {
			if results.AllowMultiple {
				mark = "[x]"
			} else {
				mark = "(•)"
			}
		}
		label := lipgloss.NewStyle().Width(labelWidth).MaxWidth(labelWidth).Render(tally.Text)
		row := mark + " " + label
		if results.Visible {
			row += " " + pollBar(tally.Percent) + fmt.Sprintf(" %d (%.0f%%)", tally.Count, tally.Percent)
		}
		lines = append(lines, m.zoneManager.Mark(pollZone(msg.ID, tally.OptionID), row))
	}
	footer := fmt.Sprintf("%d votes", results.Total)
	if !results.Visible {
		footer = "vote to see results"
	}
	if results.AllowMultiple {
		footer += " · multiple choice"
	}
	if results.Anonymous {
		footer += " · anonymous"
	}
	lines = append(lines, lipgloss.NewStyle().Foreground(metaColor).Render(footer))
	return strings.Join(lines, "\n")
}

func pollBar(percent float64) string {
	n := int(percent/100*pollBarWidth + 0.5)
	if n > pollBarWidth {
		n = pollBarWidth
	}
	return lipgloss.NewStyle().Foreground(barFilledColor).Render(strings.Repeat("█", n)) +
		lipgloss.NewStyle().Foreground(barEmptyColor).Render(strings.Repeat("░", pollBarWidth-n))
}

func pollZone(pollID, optionID string) string {
	return "poll-" + pollID + "-" + optionID
}

// clickedPollOption resolves a click on one of a poll's option rows.
func (m *Model) clickedPollOption(pollID string, msg tea.MouseMsg) (string, bool) {
	results, err := m.ctrl.PollResults(pollID)
	if err != nil {
		return "", false
	}
	for _, tally := range results.Options {
		if m.zoneManager.Get(pollZone(pollID, tally.OptionID)).InBounds(msg) {
			return tally.OptionID, true
		}
	}
	return "", false
}
