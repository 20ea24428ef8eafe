package content

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Wire tags prefixing structured payloads in the content field.
const (
	TagPoll     = "POLL:"
	TagContact  = "CONTACT:"
	TagLocation = "LOCATION:"
	TagDocument = "DOCUMENT:"
)

type pollWire struct {
	Question             string           `json:"question"`
	Options              []pollOptionWire `json:"options"`
	AllowMultipleAnswers bool             `json:"allowMultipleAnswers,omitempty"`
	IsAnonymous          bool             `json:"isAnonymous,omitempty"`
}

type pollOptionWire struct {
	ID   flexString `json:"id"`
	Text string     `json:"text"`
}

type contactWire struct {
	Name         string       `json:"name"`
	PhoneNumbers []flexString `json:"phoneNumbers"`
	Emails       []flexString `json:"emails"`
	Organization string       `json:"organization,omitempty"`
	JobTitle     string       `json:"jobTitle,omitempty"`
}

type locationWire struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address,omitempty"`
}

type documentWire struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	SecureURL string `json:"secureUrl"`
	PublicID  string `json:"publicId,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	Size      *int64 `json:"size,omitempty"`
}

type mediaWire struct {
	URI       *string `json:"uri"`
	Type      string  `json:"type"`
	SecureURL string  `json:"secureUrl,omitempty"`
	PublicID  string  `json:"publicId,omitempty"`
}

// flexString accepts a JSON string, a number, or an object carrying one of the
// keys the address book and older clients use, and always encodes as a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for _, key := range []string{"number", "email", "value", "id"} {
			if v, ok := obj[key].(string); ok {
				*f = flexString(v)
				return nil
			}
		}
		*f = ""
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
		return nil
	}
}

// Decode maps a content field to its payload. It never fails: anything that
// does not parse degrades to PlainText holding the raw string.
func Decode(raw string) Payload {
	if payload, ok := decodeTagged(raw); ok {
		return payload
	}

	// A caption line may itself start with a tag, so the media split is
	// tried before a failed tagged body degrades to text.
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		caption := raw[:idx]
		rest := raw[idx+1:]
		if items, ok := decodeMediaArray(rest); ok {
			return MediaSet{Caption: caption, Items: items}
		}
		if ValidURI(rest) {
			return MediaSet{Caption: caption, Items: []MediaItem{bareItem(rest)}}
		}
		return PlainText{Text: raw}
	}
	if hasTag(raw) {
		return PlainText{Text: raw}
	}

	if items, ok := decodeMediaArray(raw); ok {
		return MediaSet{Items: items}
	}
	if ValidURI(raw) {
		return MediaSet{Items: []MediaItem{bareItem(raw)}}
	}
	return PlainText{Text: raw}
}

func hasTag(raw string) bool {
	for _, tag := range []string{TagPoll, TagContact, TagLocation, TagDocument} {
		if strings.HasPrefix(raw, tag) {
			return true
		}
	}
	return false
}

func decodeTagged(raw string) (Payload, bool) {
	switch {
	case strings.HasPrefix(raw, TagPoll):
		return decodePoll(raw[len(TagPoll):])
	case strings.HasPrefix(raw, TagContact):
		return decodeContact(raw[len(TagContact):])
	case strings.HasPrefix(raw, TagLocation):
		return decodeLocation(raw[len(TagLocation):])
	case strings.HasPrefix(raw, TagDocument):
		return decodeDocument(raw[len(TagDocument):])
	}
	return nil, false
}

func decodePoll(body string) (Payload, bool) {
	var wire pollWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, false
	}
	if strings.TrimSpace(wire.Question) == "" || len(wire.Options) == 0 {
		return nil, false
	}
	poll := Poll{
		Question:      wire.Question,
		Options:       make([]PollOption, 0, len(wire.Options)),
		AllowMultiple: wire.AllowMultipleAnswers,
		Anonymous:     wire.IsAnonymous,
	}
	seen := make(map[string]struct{}, len(wire.Options))
	for _, opt := range wire.Options {
		id := string(opt.ID)
		if id == "" {
			return nil, false
		}
		if _, dup := seen[id]; dup {
			return nil, false
		}
		seen[id] = struct{}{}
		poll.Options = append(poll.Options, PollOption{ID: id, Text: opt.Text})
	}
	return poll, true
}

func decodeContact(body string) (Payload, bool) {
	var wire contactWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, false
	}
	if strings.TrimSpace(wire.Name) == "" {
		return nil, false
	}
	return Contact{
		Name:         wire.Name,
		Phones:       flexStrings(wire.PhoneNumbers),
		Emails:       flexStrings(wire.Emails),
		Organization: wire.Organization,
		JobTitle:     wire.JobTitle,
	}, true
}

func decodeLocation(body string) (Payload, bool) {
	var wire locationWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, false
	}
	if wire.Latitude == nil || wire.Longitude == nil {
		return nil, false
	}
	lat, lon := *wire.Latitude, *wire.Longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, false
	}
	return Location{Lat: lat, Lon: lon, Address: wire.Address}, true
}

func decodeDocument(body string) (Payload, bool) {
	var wire documentWire
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return nil, false
	}
	if wire.Name == "" || (wire.URI == "" && wire.SecureURL == "") {
		return nil, false
	}
	return Document{
		Name:      wire.Name,
		URI:       wire.URI,
		SecureURL: wire.SecureURL,
		PublicID:  wire.PublicID,
		MimeType:  wire.MimeType,
		SizeBytes: wire.Size,
	}, true
}

func decodeMediaArray(body string) ([]MediaItem, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	var wire []mediaWire
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return nil, false
	}
	if len(wire) == 0 {
		return nil, false
	}
	items := make([]MediaItem, 0, len(wire))
	for _, w := range wire {
		if w.URI == nil && w.SecureURL == "" {
			return nil, false
		}
		item := MediaItem{Type: w.Type, AltURI: w.SecureURL, PublicID: w.PublicID}
		if w.URI != nil {
			item.URI = *w.URI
		}
		items = append(items, item)
	}
	return items, true
}

func bareItem(uri string) MediaItem {
	return MediaItem{URI: uri, Type: string(ClassifyURI(uri))}
}

func flexStrings(values []flexString) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		out = append(out, string(v))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Encode is the inverse of Decode.
func Encode(p Payload) string {
	switch v := p.(type) {
	case PlainText:
		return v.Text
	case *PlainText:
		return v.Text
	case Poll:
		return TagPoll + marshal(encodePoll(v))
	case Contact:
		return TagContact + marshal(encodeContact(v))
	case Location:
		lat, lon := v.Lat, v.Lon
		return TagLocation + marshal(locationWire{Latitude: &lat, Longitude: &lon, Address: v.Address})
	case Document:
		return TagDocument + marshal(documentWire{
			Name:      v.Name,
			URI:       v.URI,
			SecureURL: v.SecureURL,
			PublicID:  v.PublicID,
			MimeType:  v.MimeType,
			Size:      v.SizeBytes,
		})
	case MediaSet:
		return encodeMedia(v)
	}
	return ""
}

func encodePoll(p Poll) pollWire {
	wire := pollWire{
		Question:             p.Question,
		Options:              make([]pollOptionWire, 0, len(p.Options)),
		AllowMultipleAnswers: p.AllowMultiple,
		IsAnonymous:          p.Anonymous,
	}
	for _, opt := range p.Options {
		wire.Options = append(wire.Options, pollOptionWire{ID: flexString(opt.ID), Text: opt.Text})
	}
	return wire
}

func encodeContact(c Contact) contactWire {
	wire := contactWire{
		Name:         c.Name,
		PhoneNumbers: make([]flexString, 0, len(c.Phones)),
		Emails:       make([]flexString, 0, len(c.Emails)),
		Organization: c.Organization,
		JobTitle:     c.JobTitle,
	}
	for _, phone := range c.Phones {
		wire.PhoneNumbers = append(wire.PhoneNumbers, flexString(phone))
	}
	for _, email := range c.Emails {
		wire.Emails = append(wire.Emails, flexString(email))
	}
	return wire
}

func encodeMedia(m MediaSet) string {
	wire := make([]mediaWire, 0, len(m.Items))
	for _, item := range m.Items {
		uri := item.URI
		wire = append(wire, mediaWire{URI: &uri, Type: item.Type, SecureURL: item.AltURI, PublicID: item.PublicID})
	}
	body := marshal(wire)
	caption := strings.ReplaceAll(m.Caption, "\n", " ")
	if caption == "" {
		return body
	}
	return caption + "\n" + body
}

// marshal encodes without HTML escaping so the output matches what the
// JavaScript clients on the same backend produce.
func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
