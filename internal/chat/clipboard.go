package chat

import (
	"errors"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
	"github.com/atotto/clipboard"
)

// clipboardWrite is swapped in tests.
var clipboardWrite = func(text string) error {
	if clipboard.Unsupported {
		return errors.New("clipboard unavailable (install xclip or xsel)")
	}
	return clipboard.WriteAll(text)
}

// copyText is what /copy puts on the clipboard: the verbatim text of a text
// message, a fetchable URL for attachments, or the card summary otherwise.
func copyText(msg types.Message) string {
	switch p := content.Decode(msg.Content).(type) {
	case content.PlainText:
		return p.Text
	case content.Document:
		return p.FetchURI()
	case content.MediaSet:
		for _, item := range p.Items {
			if item.Available() {
				return item.DisplayURI()
			}
		}
		return content.Summary(p)
	default:
		return content.Summary(p)
	}
}

func copyMessage(msg types.Message) error {
	text := copyText(msg)
	if text == "" {
		return errors.New("nothing to copy")
	}
	return clipboardWrite(text)
}
