package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func parseRelativeTime(value string, now time.Time) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	unit := value[len(value)-1:]
	amountStr := value[:len(value)-1]
	var multiplier int64
	switch strings.ToLower(unit) {
	case "m":
		multiplier = 60
	case "h":
		multiplier = 3600
	case "d":
		multiplier = 86400
	case "w":
		multiplier = 604800
	default:
		return nil
	}
	amount := int64(0)
	for _, r := range amountStr {
		if r < '0' || r > '9' {
			return nil
		}
		amount = amount*10 + int64(r-'0')
	}
	if amount == 0 {
		return nil
	}

	ts := now.Add(-time.Duration(amount*multiplier) * time.Second)
	return &ts
}

func parseAbsoluteTime(value string, now time.Time) *time.Time {
	lower := strings.ToLower(strings.TrimSpace(value))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch lower {
	case "today":
		return &today
	case "yesterday":
		ts := today.Add(-24 * time.Hour)
		return &ts
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.ParseInLocation(layout, strings.TrimSpace(value), now.Location()); err == nil {
			return &ts
		}
	}
	return nil
}

// ParseTimeExpression converts "2h", "3d", "today", "yesterday", a date or
// an RFC 3339 timestamp into a point in time relative to now.
func ParseTimeExpression(expression string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(expression)
	if absolute := parseAbsoluteTime(trimmed, now); absolute != nil {
		return *absolute, nil
	}
	if relative := parseRelativeTime(trimmed, now); relative != nil {
		return *relative, nil
	}
	return time.Time{}, fmt.Errorf("invalid time expression: %s", expression)
}

// FormatTimestamp renders a message time: clock time for today, relative
// otherwise.
func FormatTimestamp(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	if ts.Year() == now.Year() && ts.YearDay() == now.YearDay() {
		return ts.Format("15:04")
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}

// FormatDuration renders a clip length as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
