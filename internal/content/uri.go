package content

import (
	"net/url"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Placeholder is rendered in place of media that cannot be fetched.
const Placeholder = "media unavailable"

// fetchableSchemes is the allow-list of URI schemes a renderer may fetch.
// Device-private schemes (file, content, ph, assets-library) are excluded.
var fetchableSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

// ValidURI reports whether raw is a fetchable media URI.
func ValidURI(raw string) bool {
	value := strings.TrimSpace(raw)
	if value == "" || value != raw || strings.EqualFold(value, "null") {
		return false
	}
	if strings.ContainsAny(value, " \t\r\n") {
		return false
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	if _, ok := fetchableSchemes[strings.ToLower(parsed.Scheme)]; !ok {
		return false
	}
	return parsed.Host != ""
}

// MediaClass is the renderable category of a media item.
type MediaClass string

const (
	MediaClassUnknown MediaClass = ""
	MediaClassImage   MediaClass = "image"
	MediaClassVideo   MediaClass = "video"
	MediaClassAudio   MediaClass = "audio"
	MediaClassFile    MediaClass = "file"
)

type classRule struct {
	matcher glob.Glob
	class   MediaClass
}

// typeRules match the item "type" field, which the backend fills with either a
// bare class ("image") or a full mime type ("image/jpeg").
var typeRules = mustRules(map[string]MediaClass{
	"image":         MediaClassImage,
	"image/*":       MediaClassImage,
	"video":         MediaClassVideo,
	"video/*":       MediaClassVideo,
	"audio":         MediaClassAudio,
	"audio/*":       MediaClassAudio,
	"file":          MediaClassFile,
	"document":      MediaClassFile,
	"application/*": MediaClassFile,
	"text/*":        MediaClassFile,
})

var extensionRules = mustRules(map[string]MediaClass{
	"*.{jpg,jpeg,png,gif,webp,heic,bmp}": MediaClassImage,
	"*.{mp4,mov,m4v,webm,avi}":           MediaClassVideo,
	"*.{m4a,mp3,aac,wav,ogg,caf,opus}":   MediaClassAudio,
	"*.{pdf,doc,docx,xls,xlsx,txt,zip}":  MediaClassFile,
})

func mustRules(patterns map[string]MediaClass) []classRule {
	rules := make([]classRule, 0, len(patterns))
	for pattern, class := range patterns {
		rules = append(rules, classRule{matcher: glob.MustCompile(pattern, '/'), class: class})
	}
	return rules
}

func match(rules []classRule, value string) MediaClass {
	for _, rule := range rules {
		if rule.matcher.Match(value) {
			return rule.class
		}
	}
	return MediaClassUnknown
}

// ClassifyType maps a type or mime string to a media class.
func ClassifyType(value string) MediaClass {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return MediaClassUnknown
	}
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = strings.TrimSpace(value[:idx])
	}
	return match(typeRules, value)
}

// ClassifyURI infers a media class from the URI path extension, defaulting to
// image since bare URIs are how the backend sends photos.
func ClassifyURI(raw string) MediaClass {
	parsed, err := url.Parse(raw)
	if err != nil {
		return MediaClassImage
	}
	name := strings.ToLower(path.Base(parsed.Path))
	if class := match(extensionRules, name); class != MediaClassUnknown {
		return class
	}
	return MediaClassImage
}
