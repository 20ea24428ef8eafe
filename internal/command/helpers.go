package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/huddle/internal/core"
	"github.com/adamavenir/huddle/internal/types"
)

// findMessage resolves a full id, correlation id or short id prefix.
func findMessage(messages []types.Message, ref string) (types.Message, error) {
	ref = stripHash(ref)
	if ref == "" {
		return types.Message{}, fmt.Errorf("message id required")
	}
	for _, msg := range messages {
		if msg.ID == ref || msg.CorrelationID == ref {
			return msg, nil
		}
	}
	var matches []types.Message
	for _, msg := range messages {
		if strings.HasPrefix(core.ShortID(msg.ID, len(msg.ID)), ref) {
			matches = append(matches, msg)
		}
	}
	switch len(matches) {
	case 0:
		return types.Message{}, fmt.Errorf("message #%s not found", ref)
	case 1:
		return matches[0], nil
	}
	return types.Message{}, fmt.Errorf("#%s is ambiguous (%d matches)", ref, len(matches))
}

func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
