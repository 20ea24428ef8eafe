package content

// Kind identifies a decoded payload variant.
type Kind string

const (
	KindText     Kind = "text"
	KindMedia    Kind = "media"
	KindPoll     Kind = "poll"
	KindContact  Kind = "contact"
	KindLocation Kind = "location"
	KindDocument Kind = "document"
)

// Payload is the closed set of message payloads. Callers switch on the
// concrete type; the unexported method keeps the set sealed.
type Payload interface {
	Kind() Kind
	payload()
}

// PlainText is verbatim text, and the fallback for anything unparseable.
type PlainText struct {
	Text string
}

// MediaItem is one entry of a media set.
type MediaItem struct {
	URI      string
	Type     string
	AltURI   string
	PublicID string
}

// MediaSet is one or more media items with an optional caption.
type MediaSet struct {
	Caption string
	Items   []MediaItem
}

// PollOption is a selectable poll answer.
type PollOption struct {
	ID   string
	Text string
}

// Poll is a question with options.
type Poll struct {
	Question      string
	Options       []PollOption
	AllowMultiple bool
	Anonymous     bool
}

// Contact is a shared address-book card.
type Contact struct {
	Name         string
	Phones       []string
	Emails       []string
	Organization string
	JobTitle     string
}

// Location is a shared map pin.
type Location struct {
	Lat     float64
	Lon     float64
	Address string
}

// Document is an uploaded file attachment.
type Document struct {
	Name      string
	URI       string
	SecureURL string
	PublicID  string
	MimeType  string
	SizeBytes *int64
}

func (PlainText) Kind() Kind { return KindText }
func (MediaSet) Kind() Kind  { return KindMedia }
func (Poll) Kind() Kind      { return KindPoll }
func (Contact) Kind() Kind   { return KindContact }
func (Location) Kind() Kind  { return KindLocation }
func (Document) Kind() Kind  { return KindDocument }

func (PlainText) payload() {}
func (MediaSet) payload()  {}
func (Poll) payload()      {}
func (Contact) payload()   {}
func (Location) payload()  {}
func (Document) payload()  {}

// Option returns the option with the given id.
func (p Poll) Option(id string) (PollOption, bool) {
	for _, opt := range p.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return PollOption{}, false
}

// DisplayURI is the URI a renderer should fetch: the durable secure URL when
// it passes validation, otherwise the original URI.
func (i MediaItem) DisplayURI() string {
	if ValidURI(i.AltURI) {
		return i.AltURI
	}
	return i.URI
}

// Available reports whether the item can be fetched. Unavailable items
// render as a placeholder.
func (i MediaItem) Available() bool {
	return ValidURI(i.DisplayURI())
}

// Class classifies the item as image, video, audio or file.
func (i MediaItem) Class() MediaClass {
	if class := ClassifyType(i.Type); class != MediaClassUnknown {
		return class
	}
	return ClassifyURI(i.DisplayURI())
}

// FetchURI returns the URI to download the document from.
func (d Document) FetchURI() string {
	if ValidURI(d.SecureURL) {
		return d.SecureURL
	}
	return d.URI
}
