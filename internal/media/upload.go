package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
)

// Resource types understood by the upload service.
const (
	ResourceImage = "image"
	ResourceVideo = "video"
	ResourceRaw   = "raw"
	ResourceAuto  = "auto"
)

// MaxUploadBytes caps a single upload.
const MaxUploadBytes = 50 << 20

var ErrTooLarge = errors.New("file exceeds upload limit")

// Uploader sends local files to the media hosting service and returns their
// durable URLs.
type Uploader struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewUploader builds an uploader for endpoint.
func NewUploader(endpoint, token string) (*Uploader, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid upload url %q", endpoint)
	}
	return &Uploader{
		endpoint:   u.String(),
		token:      token,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

type uploadResponse struct {
	SecureURL      string `json:"secureUrl"`
	SecureURLSnake string `json:"secure_url"`
	PublicID       string `json:"publicId"`
	PublicIDSnake  string `json:"public_id"`
}

// LocalPath converts a file:// URI or plain path to a filesystem path.
func LocalPath(localURI string) string {
	if strings.HasPrefix(localURI, "file://") {
		if u, err := url.Parse(localURI); err == nil {
			return u.Path
		}
		return strings.TrimPrefix(localURI, "file://")
	}
	return localURI
}

// extraTypes covers media extensions missing from minimal mime tables.
var extraTypes = map[string]string{
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".heic": "image/heic",
}

// MimeFor guesses a content type from the file extension.
func MimeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

// Upload posts the file at localURI as multipart form data.
func (u *Uploader) Upload(ctx context.Context, localURI string, opts types.UploadOptions) (types.UploadResult, error) {
	path := LocalPath(localURI)
	data, err := os.ReadFile(path)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return types.UploadResult{}, fmt.Errorf("%s: %w", filepath.Base(path), ErrTooLarge)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(path)))
	partHeader.Set("Content-Type", MimeFor(path))
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return types.UploadResult{}, fmt.Errorf("write upload data: %w", err)
	}
	if opts.Folder != "" {
		_ = writer.WriteField("folder", opts.Folder)
	}
	if len(opts.Tags) > 0 {
		_ = writer.WriteField("tags", strings.Join(opts.Tags, ","))
	}
	resourceType := opts.ResourceType
	if resourceType == "" {
		resourceType = ResourceAuto
	}
	_ = writer.WriteField("resource_type", resourceType)
	if err := writer.Close(); err != nil {
		return types.UploadResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.UploadResult{}, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.UploadResult{}, fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return types.UploadResult{}, fmt.Errorf("parse upload response: %w", err)
	}
	result := types.UploadResult{SecureURL: out.SecureURL, PublicID: out.PublicID}
	if result.SecureURL == "" {
		result.SecureURL = out.SecureURLSnake
	}
	if result.PublicID == "" {
		result.PublicID = out.PublicIDSnake
	}
	if !content.ValidURI(result.SecureURL) {
		return types.UploadResult{}, fmt.Errorf("upload returned unusable url %q", result.SecureURL)
	}
	return result, nil
}

// PrepareDocument uploads a file and describes it as a document card.
func (u *Uploader) PrepareDocument(ctx context.Context, localURI string, opts types.UploadOptions) (content.Document, error) {
	path := LocalPath(localURI)
	info, err := os.Stat(path)
	if err != nil {
		return content.Document{}, fmt.Errorf("stat document: %w", err)
	}
	opts.ResourceType = ResourceRaw
	res, err := u.Upload(ctx, localURI, opts)
	if err != nil {
		return content.Document{}, err
	}
	size := info.Size()
	return content.Document{
		Name:      filepath.Base(path),
		URI:       res.SecureURL,
		SecureURL: res.SecureURL,
		PublicID:  res.PublicID,
		MimeType:  MimeFor(path),
		SizeBytes: &size,
	}, nil
}

// PrepareMedia uploads images, videos or audio and returns a media set.
func (u *Uploader) PrepareMedia(ctx context.Context, localURIs []string, caption string, opts types.UploadOptions) (content.MediaSet, error) {
	set := content.MediaSet{Caption: caption}
	for _, localURI := range localURIs {
		path := LocalPath(localURI)
		mimeType := MimeFor(path)
		itemOpts := opts
		switch content.ClassifyType(mimeType) {
		case content.MediaClassImage:
			itemOpts.ResourceType = ResourceImage
		case content.MediaClassVideo, content.MediaClassAudio:
			itemOpts.ResourceType = ResourceVideo
		default:
			itemOpts.ResourceType = ResourceAuto
		}
		res, err := u.Upload(ctx, localURI, itemOpts)
		if err != nil {
			return content.MediaSet{}, err
		}
		set.Items = append(set.Items, content.MediaItem{
			URI:      res.SecureURL,
			AltURI:   res.SecureURL,
			Type:     mimeType,
			PublicID: res.PublicID,
		})
	}
	if len(set.Items) == 0 {
		return content.MediaSet{}, errors.New("no media to upload")
	}
	return set, nil
}
