package core

import (
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"github.com/adamavenir/huddle/internal/types"
)

// GroupThreshold is the longest gap between two messages from the same
// sender that still renders them as one group.
const GroupThreshold = 300 * time.Second

// letterAvatars maps lowercase letters to avatar options.
// First option is the squared letter, second the circled letter.
var letterAvatars = map[rune][]string{
	'a': {"🅰", "Ⓐ"},
	'b': {"🅱", "Ⓑ"},
	'c': {"🅲", "Ⓒ"},
	'd': {"🅳", "Ⓓ"},
	'e': {"🅴", "Ⓔ"},
	'f': {"🅵", "Ⓕ"},
	'g': {"🅶", "Ⓖ"},
	'h': {"🅷", "Ⓗ"},
	'i': {"🅸", "Ⓘ"},
	'j': {"🅹", "Ⓙ"},
	'k': {"🅺", "Ⓚ"},
	'l': {"🅻", "Ⓛ"},
	'm': {"🅼", "Ⓜ"},
	'n': {"🅽", "Ⓝ"},
	'o': {"🅾", "Ⓞ"},
	'p': {"🅿", "Ⓟ"},
	'q': {"🆀", "Ⓠ"},
	'r': {"🆁", "Ⓡ"},
	's': {"🆂", "Ⓢ"},
	't': {"🆃", "Ⓣ"},
	'u': {"🆄", "Ⓤ"},
	'v': {"🆅", "Ⓥ"},
	'w': {"🆆", "Ⓦ"},
	'x': {"🆇", "Ⓧ"},
	'y': {"🆈", "Ⓨ"},
	'z': {"🆉", "Ⓩ"},
}

// genericAvatars are used when the name has no usable first letter.
var genericAvatars = []string{"✿", "☗", "❖", "⌘", "〶", "☡", "〠", "❍", "◈", "◉"}

// AvatarFor returns a stable avatar glyph for a sender. The same sender id
// always gets the same glyph.
func AvatarFor(senderID, displayName string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(senderID))
	sum := int(h.Sum32())

	name := strings.ToLower(strings.TrimSpace(displayName))
	if name == "" {
		name = strings.ToLower(senderID)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			break
		}
		if options, ok := letterAvatars[r]; ok {
			return options[sum%len(options)]
		}
		break
	}
	return genericAvatars[sum%len(genericAvatars)]
}

// ShowAvatar reports whether cur starts a new visual group after prev.
// prev is nil for the first message in the list.
func ShowAvatar(prev, cur *types.Message) bool {
	if cur == nil || cur.IsSystem() {
		return false
	}
	if prev == nil || prev.IsSystem() {
		return true
	}
	if prev.SenderID != cur.SenderID {
		return true
	}
	return cur.CreatedAt.Sub(prev.CreatedAt) > GroupThreshold
}

// AvatarFlags evaluates ShowAvatar across an ordered list. System messages
// never carry an avatar and break the group around them.
func AvatarFlags(messages []types.Message) []bool {
	flags := make([]bool, len(messages))
	var prev *types.Message
	for i := range messages {
		cur := &messages[i]
		flags[i] = ShowAvatar(prev, cur)
		prev = cur
	}
	return flags
}
