package chat

import (
	"strings"
	"testing"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
)

func TestTruncateNotification(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 100, "short"},
		{"hello\nworld", 100, "hello world"},
		{"  multiple   spaces  ", 100, "multiple spaces"},
		{"this is a long message that needs truncation", 20, "this is a long mess…"},
		{"", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := truncateNotification(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateNotification(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestNotificationUsesSummary(t *testing.T) {
	poll := content.Encode(content.Poll{
		Question: "Lunch?",
		Options:  []content.PollOption{{ID: "1", Text: "tacos"}, {ID: "2", Text: "pizza"}},
	})
	title, body := notification("", types.Message{SenderID: "bob", Content: poll})
	if title != "huddle" {
		t.Fatalf("title: got %q", title)
	}
	if body != "bob: 📊 Poll: Lunch?" {
		t.Fatalf("body: got %q", body)
	}

	sender := strings.Repeat("B", 60)
	_, body = notification("team", types.Message{SenderID: "bob", SenderDisplay: sender, Content: strings.Repeat("x", 300)})
	if !strings.HasPrefix(body, sender+": ") || len([]rune(body)) != notificationBodyLimit || !strings.HasSuffix(body, "…") {
		t.Fatalf("body not truncated: %q", body)
	}
}

func TestNotifyMessageSends(t *testing.T) {
	var gotTitle, gotBody string
	prev := notifySend
	notifySend = func(title, body string) error {
		gotTitle, gotBody = title, body
		return nil
	}
	t.Cleanup(func() { notifySend = prev })

	if err := notifyMessage("huddle · general", types.Message{SenderID: "bob", Content: "ping"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotTitle != "huddle · general" || gotBody != "bob: ping" {
		t.Fatalf("got %q / %q", gotTitle, gotBody)
	}
}
