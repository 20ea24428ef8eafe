package command

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/types"
)

const (
	maxDisplayLines = 20
	shortIDLength   = 8
)

var (
	noColor = os.Getenv("NO_COLOR") != ""

	dim    = ansiCode("\x1b[2m")
	bold   = ansiCode("\x1b[1m")
	gray   = ansiCode("\x1b[38;5;240m")
	red    = ansiCode("\x1b[38;5;203m")
	yellow = ansiCode("\x1b[38;5;221m")
	reset  = ansiCode("\x1b[0m")
)

var senderColors = []string{
	ansiCode("\x1b[38;5;111m"),
	ansiCode("\x1b[38;5;157m"),
	ansiCode("\x1b[38;5;216m"),
	ansiCode("\x1b[38;5;36m"),
	ansiCode("\x1b[38;5;183m"),
	ansiCode("\x1b[38;5;230m"),
}

// FormatMessage formats a message as one history entry. Long text bodies are
// cut to maxDisplayLines unless full is set.
func FormatMessage(msg types.Message, now time.Time, full bool) string {
	if msg.IsSystem() {
		return fmt.Sprintf("%s· %s%s", gray, msg.Content, reset)
	}

	editedSuffix := ""
	if msg.Edited {
		editedSuffix = " (edited)"
	}
	idBlock := fmt.Sprintf("%s[%s#%s%s%s %s%s]%s", dim, bold, core.ShortID(msg.ID, shortIDLength), reset, dim, core.FormatTimestamp(msg.CreatedAt, now), editedSuffix, reset)

	sender := msg.SenderDisplay
	if sender == "" {
		sender = msg.SenderID
	}
	color := senderColor(msg.SenderID)

	reply := ""
	if msg.ReplyToID != nil {
		reply = fmt.Sprintf("%s↳ #%s%s ", dim, core.ShortID(*msg.ReplyToID, shortIDLength), reset)
	}

	line := fmt.Sprintf("%s %s%s%s%s: %s", idBlock, reply, color, sender, reset, formatBody(msg, full))
	switch msg.State {
	case types.SendStatePending:
		line += yellow + " (sending)" + reset
	case types.SendStateFailed:
		line += fmt.Sprintf("%s (failed: %s)%s", red, msg.Err, reset)
	}
	return line
}

// formatBody renders text verbatim and every other payload as its summary.
func formatBody(msg types.Message, full bool) string {
	switch p := content.Decode(msg.Content).(type) {
	case content.PlainText:
		if full {
			return p.Text
		}
		return truncateForDisplay(p.Text, msg.ID)
	case content.MediaSet:
		summary := content.Summary(p)
		for _, item := range p.Items {
			if !item.Available() {
				summary += " (" + content.Placeholder + ")"
				break
			}
		}
		return summary
	default:
		return content.Summary(p)
	}
}

func truncateForDisplay(body, messageID string) string {
	lines := strings.Split(body, "\n")
	if len(lines) <= maxDisplayLines {
		return body
	}
	hidden := len(lines) - maxDisplayLines
	return strings.Join(lines[:maxDisplayLines], "\n") +
		fmt.Sprintf("\n%s... %d more lines. Use: huddle history --full | grep %s%s", dim, hidden, core.ShortID(messageID, shortIDLength), reset)
}

func ansiCode(code string) string {
	if noColor {
		return ""
	}
	return code
}

func senderColor(senderID string) string {
	if noColor || senderID == "" {
		return ""
	}
	return senderColors[hashString(senderID)%len(senderColors)]
}

func hashString(value string) int {
	var hash uint32
	for i := 0; i < len(value); i++ {
		hash = (hash << 5) - hash + uint32(value[i])
	}
	return int(hash & 0x7fffffff)
}

func stripHash(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "#")
}
