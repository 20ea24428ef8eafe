package chat

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var senderPalette = []lipgloss.Color{
	lipgloss.Color("111"),
	lipgloss.Color("157"),
	lipgloss.Color("216"),
	lipgloss.Color("36"),
	lipgloss.Color("183"),
	lipgloss.Color("230"),
}

var (
	textColor      = lipgloss.Color("252")
	metaColor      = lipgloss.Color("242")
	selfColor      = lipgloss.Color("249")
	statusColor    = lipgloss.Color("245")
	errorColor     = lipgloss.Color("203")
	pendingColor   = lipgloss.Color("178")
	accentColor    = lipgloss.Color("75")
	highlightBg    = lipgloss.Color("237")
	inputBg        = lipgloss.Color("235")
	caretColor     = lipgloss.Color("75")
	barFilledColor = lipgloss.Color("75")
	barEmptyColor  = lipgloss.Color("238")
	recordingColor = lipgloss.Color("196")
)

// senderColor picks a stable palette entry for a sender. The viewer's own
// messages use a neutral color.
func senderColor(senderID, selfID string) lipgloss.Color {
	if senderID == selfID {
		return selfColor
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(senderID))
	return senderPalette[int(h.Sum32()%uint32(len(senderPalette)))]
}

// contrastTextColor returns black or white, whichever reads better on color.
func contrastTextColor(color lipgloss.Color) lipgloss.Color {
	code, ok := parseColorCode(color)
	if !ok {
		return lipgloss.Color("231")
	}
	r, g, b := colorCodeToRGB(code)
	luminance := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	if luminance > 128 {
		return lipgloss.Color("16")
	}
	return lipgloss.Color("231")
}

func parseColorCode(color lipgloss.Color) (int, bool) {
	trimmed := strings.TrimSpace(string(color))
	if trimmed == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 || parsed > 255 {
		return 0, false
	}
	return parsed, true
}

// colorCodeToRGB approximates an xterm-256 code.
func colorCodeToRGB(code int) (int, int, int) {
	switch {
	case code < 16:
		standard := [16][3]int{
			{0, 0, 0}, {128, 0, 0}, {0, 128, 0}, {128, 128, 0},
			{0, 0, 128}, {128, 0, 128}, {0, 128, 128}, {192, 192, 192},
			{128, 128, 128}, {255, 0, 0}, {0, 255, 0}, {255, 255, 0},
			{0, 0, 255}, {255, 0, 255}, {0, 255, 255}, {255, 255, 255},
		}
		v := standard[code]
		return v[0], v[1], v[2]
	case code <= 231:
		index := code - 16
		level := func(v int) int {
			if v == 0 {
				return 0
			}
			return 55 + v*40
		}
		return level(index / 36), level((index % 36) / 6), level(index % 6)
	default:
		gray := 8 + (code-232)*10
		return gray, gray, gray
	}
}
