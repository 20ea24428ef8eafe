package chat

import (
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/gen2brain/beeep"
)

const notificationBodyLimit = 120

// notifySend is swapped in tests.
var notifySend = func(title, body string) error {
	return beeep.Notify(title, body, "")
}

// notification builds the desktop notification for a message that arrived
// while the viewer was scrolled away from the bottom.
func notification(title string, msg types.Message) (string, string) {
	sender := msg.SenderDisplay
	if sender == "" {
		sender = msg.SenderID
	}
	if title == "" {
		title = "huddle"
	}
	body := sender + ": " + content.Summary(content.Decode(msg.Content))
	return title, truncateNotification(body, notificationBodyLimit)
}

func notifyMessage(title string, msg types.Message) error {
	t, body := notification(title, msg)
	return notifySend(t, body)
}

func truncateNotification(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
