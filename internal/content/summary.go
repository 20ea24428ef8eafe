package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/huddle/internal/types"
	"github.com/dustin/go-humanize"
)

const previewLimit = 80

// Summary returns a single-line preview used for reply context and
// notifications.
func Summary(p Payload) string {
	switch v := p.(type) {
	case PlainText:
		return truncate(firstLine(v.Text), previewLimit)
	case MediaSet:
		label := mediaLabel(v)
		if v.Caption != "" {
			return truncate(label+": "+v.Caption, previewLimit)
		}
		return label
	case Poll:
		return truncate("📊 Poll: "+v.Question, previewLimit)
	case Contact:
		return truncate("👤 Contact: "+v.Name, previewLimit)
	case Location:
		if v.Address != "" {
			return truncate("📍 "+v.Address, previewLimit)
		}
		return fmt.Sprintf("📍 %s, %s", formatCoord(v.Lat), formatCoord(v.Lon))
	case Document:
		return truncate("📄 "+DocumentLabel(v), previewLimit)
	}
	return ""
}

// DocumentLabel renders "name · size" when the size is known.
func DocumentLabel(d Document) string {
	if d.SizeBytes == nil || *d.SizeBytes < 0 {
		return d.Name
	}
	return d.Name + " · " + humanize.Bytes(uint64(*d.SizeBytes))
}

func mediaLabel(m MediaSet) string {
	if len(m.Items) == 0 {
		return Placeholder
	}
	class := m.Items[0].Class()
	for _, item := range m.Items[1:] {
		if item.Class() != class {
			class = MediaClassFile
			break
		}
	}
	noun := "Photo"
	switch class {
	case MediaClassVideo:
		noun = "Video"
	case MediaClassAudio:
		noun = "Voice message"
	case MediaClassFile:
		noun = "Attachment"
	}
	if len(m.Items) == 1 {
		return noun
	}
	return fmt.Sprintf("%d %ss", len(m.Items), strings.ToLower(noun))
}

// MessageTypeFor maps a payload to the transport message type.
func MessageTypeFor(p Payload) types.MessageType {
	switch v := p.(type) {
	case MediaSet:
		if len(v.Items) > 0 && v.Items[0].Class() == MediaClassAudio {
			return types.MessageTypeAudio
		}
		return types.MessageTypeImage
	case Document:
		return types.MessageTypeFile
	}
	return types.MessageTypeText
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + " …"
	}
	return s
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}
