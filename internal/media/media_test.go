package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/adamavenir/huddle/internal/types"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func uploadServer(t *testing.T, check func(r *http.Request)) *Uploader {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if check != nil {
			check(r)
		}
		_, _ = w.Write([]byte(`{"secure_url":"https://cdn.example.com/up/abc","public_id":"up/abc"}`))
	}))
	t.Cleanup(srv.Close)
	up, err := NewUploader(srv.URL+"/upload", "tok")
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	return up
}

func TestUploadSendsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.pdf", "pdf-bytes")

	up := uploadServer(t, func(r *http.Request) {
		if got := r.FormValue("folder"); got != "huddle" {
			t.Errorf("folder = %q", got)
		}
		if got := r.FormValue("tags"); got != "chat,voice" {
			t.Errorf("tags = %q", got)
		}
		if got := r.FormValue("resource_type"); got != ResourceAuto {
			t.Errorf("resource_type = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "pdf-bytes" || header.Filename != "notes.pdf" {
			t.Errorf("unexpected file %q %q", header.Filename, data)
		}
		if got := header.Header.Get("Content-Type"); got != "application/pdf" {
			t.Errorf("content type = %q", got)
		}
	})

	res, err := up.Upload(context.Background(), "file://"+path, types.UploadOptions{Folder: "huddle", Tags: []string{"chat", "voice"}})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.SecureURL != "https://cdn.example.com/up/abc" || res.PublicID != "up/abc" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUploadFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()
	up, err := NewUploader(srv.URL, "")
	if err != nil {
		t.Fatalf("new uploader: %v", err)
	}
	path := writeFile(t, t.TempDir(), "a.png", "png")
	if _, err := up.Upload(context.Background(), path, types.UploadOptions{}); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestUploadRejectsUnusableURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"secureUrl":"file:///tmp/x"}`))
	}))
	defer srv.Close()
	up, _ := NewUploader(srv.URL, "")
	path := writeFile(t, t.TempDir(), "a.png", "png")
	if _, err := up.Upload(context.Background(), path, types.UploadOptions{}); err == nil {
		t.Fatal("expected unusable url error")
	}
}

func TestNewUploaderValidatesURL(t *testing.T) {
	if _, err := NewUploader("ftp://files", ""); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestPrepareDocument(t *testing.T) {
	path := writeFile(t, t.TempDir(), "report.pdf", "0123456789")
	up := uploadServer(t, func(r *http.Request) {
		if got := r.FormValue("resource_type"); got != ResourceRaw {
			t.Errorf("resource_type = %q", got)
		}
	})
	doc, err := up.PrepareDocument(context.Background(), path, types.UploadOptions{})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if doc.Name != "report.pdf" || doc.MimeType != "application/pdf" {
		t.Fatalf("unexpected doc %+v", doc)
	}
	if doc.SizeBytes == nil || *doc.SizeBytes != 10 {
		t.Fatalf("unexpected size %v", doc.SizeBytes)
	}
	if doc.FetchURI() != "https://cdn.example.com/up/abc" {
		t.Fatalf("unexpected fetch uri %q", doc.FetchURI())
	}
	if _, ok := content.Decode(content.Encode(doc)).(content.Document); !ok {
		t.Fatal("prepared document should encode as a document payload")
	}
}

func TestPrepareMediaResourceTypes(t *testing.T) {
	dir := t.TempDir()
	img := writeFile(t, dir, "cat.png", "png")
	vid := writeFile(t, dir, "clip.mp4", "mp4")
	var mu sync.Mutex
	var seen []string
	up := uploadServer(t, func(r *http.Request) {
		mu.Lock()
		seen = append(seen, r.FormValue("resource_type"))
		mu.Unlock()
	})
	set, err := up.PrepareMedia(context.Background(), []string{img, vid}, "look", types.UploadOptions{})
	if err != nil {
		t.Fatalf("prepare media: %v", err)
	}
	if len(set.Items) != 2 || set.Caption != "look" {
		t.Fatalf("unexpected set %+v", set)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != ResourceImage || seen[1] != ResourceVideo {
		t.Fatalf("unexpected resource types %v", seen)
	}
	if !set.Items[0].Available() {
		t.Fatal("uploaded item should be available")
	}
	if _, err := up.PrepareMedia(context.Background(), nil, "", types.UploadOptions{}); err == nil {
		t.Fatal("expected error for empty media set")
	}
}

func TestUploadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Truncate(MaxUploadBytes + 1); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	up, _ := NewUploader("https://upload.example.com", "")
	_, err = up.Upload(context.Background(), path, types.UploadOptions{})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestLocalPath(t *testing.T) {
	if got := LocalPath("file:///tmp/a%20b.png"); got != "/tmp/a b.png" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := LocalPath("/tmp/x"); got != "/tmp/x" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestScanNewestFirst(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.txt", "a")
	writeFile(t, dir, "new.png", "b")
	writeFile(t, dir, ".hidden", "c")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	picks, err := Scan(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(picks) != 2 {
		t.Fatalf("expected 2 picks, got %+v", picks)
	}
	if picks[0].Name != "new.png" || picks[0].Class != content.MediaClassImage {
		t.Fatalf("unexpected first pick %+v", picks[0])
	}
	if picks[1].Class != content.MediaClassFile {
		t.Fatalf("text file should classify as file, got %q", picks[1].Class)
	}
}

func TestDropWatcherEmitsSettledFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDropWatcher(dir, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	writeFile(t, dir, "drop.pdf", "hello")

	select {
	case pick := <-w.Picks():
		if pick.Name != "drop.pdf" || pick.Size != 5 || pick.URI() != "file://"+filepath.Join(dir, "drop.pdf") {
			t.Fatalf("unexpected pick %+v", pick)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pick")
	}
}

func TestDropWatcherCloseIdempotent(t *testing.T) {
	w, err := NewDropWatcher(filepath.Join(t.TempDir(), "drops"), 0)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = w.Close()
}

func TestPickFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "note.m4a", "abc")
	pick, err := PickFile(path)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if pick.Class != content.MediaClassAudio || pick.Size != 3 || pick.Name != "note.m4a" {
		t.Fatalf("unexpected pick %+v", pick)
	}
	if _, err := PickFile(dir); err == nil {
		t.Fatal("expected error for directory")
	}
	if _, err := PickFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
