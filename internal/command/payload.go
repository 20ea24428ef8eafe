package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/spf13/cobra"
)

var payloadKinds = []string{"text", "poll", "location", "contact", "document", "media"}

func addPayloadFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArray("option", nil, "poll option (repeatable)")
	flags.Bool("multi", false, "poll allows multiple answers")
	flags.Bool("anon", false, "poll hides voter identities")
	flags.String("address", "", "location address")
	flags.StringArray("phone", nil, "contact phone (repeatable)")
	flags.StringArray("email", nil, "contact email (repeatable)")
	flags.String("org", "", "contact organization")
	flags.String("title", "", "contact job title")
	flags.String("uri", "", "document URI")
	flags.String("secure-url", "", "document durable URL")
	flags.String("mime", "", "document mime type")
	flags.Int64("size", -1, "document size in bytes")
	flags.StringArray("media", nil, "media URI (repeatable)")
	flags.String("media-type", "", "media type for every item, e.g. image or audio/mp4")
	flags.String("caption", "", "media caption")
}

// buildPayload turns a kind, its positional args and the payload flags into
// a payload.
func buildPayload(cmd *cobra.Command, kind string, args []string) (content.Payload, error) {
	flags := cmd.Flags()
	joined := strings.TrimSpace(strings.Join(args, " "))

	switch kind {
	case "", "text":
		if joined == "" {
			return nil, errors.New("message text required")
		}
		return content.PlainText{Text: joined}, nil

	case "poll":
		texts, _ := flags.GetStringArray("option")
		multi, _ := flags.GetBool("multi")
		anon, _ := flags.GetBool("anon")
		if joined == "" || len(texts) < 2 {
			return nil, errors.New("poll needs a question and at least two --option values")
		}
		p := content.Poll{Question: joined, AllowMultiple: multi, Anonymous: anon}
		for _, text := range texts {
			p.Options = append(p.Options, content.PollOption{ID: strconv.Itoa(len(p.Options) + 1), Text: text})
		}
		return p, nil

	case "location":
		if len(args) < 2 {
			return nil, errors.New("location needs <lat> <lon>")
		}
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude %q", args[0])
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude %q", args[1])
		}
		address, _ := flags.GetString("address")
		return content.Location{Lat: lat, Lon: lon, Address: address}, nil

	case "contact":
		if joined == "" {
			return nil, errors.New("contact name required")
		}
		phones, _ := flags.GetStringArray("phone")
		emails, _ := flags.GetStringArray("email")
		org, _ := flags.GetString("org")
		title, _ := flags.GetString("title")
		return content.Contact{Name: joined, Phones: phones, Emails: emails, Organization: org, JobTitle: title}, nil

	case "document":
		uri, _ := flags.GetString("uri")
		secure, _ := flags.GetString("secure-url")
		mime, _ := flags.GetString("mime")
		size, _ := flags.GetInt64("size")
		if joined == "" || (uri == "" && secure == "") {
			return nil, errors.New("document needs a name and --uri or --secure-url")
		}
		doc := content.Document{Name: joined, URI: uri, SecureURL: secure, MimeType: mime}
		if size >= 0 {
			doc.SizeBytes = &size
		}
		return doc, nil

	case "media":
		uris, _ := flags.GetStringArray("media")
		mediaType, _ := flags.GetString("media-type")
		caption, _ := flags.GetString("caption")
		if len(uris) == 0 {
			return nil, errors.New("media needs at least one --media URI")
		}
		set := content.MediaSet{Caption: caption}
		for _, uri := range uris {
			set.Items = append(set.Items, content.MediaItem{URI: uri, Type: mediaType})
		}
		return set, nil
	}
	return nil, fmt.Errorf("unknown kind %q (want one of %s)", kind, strings.Join(payloadKinds, ", "))
}
