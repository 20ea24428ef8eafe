package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/huddle/internal/content"
	"github.com/fsnotify/fsnotify"
)

// Pick is a file chosen for attachment.
type Pick struct {
	Path     string
	Name     string
	MimeType string
	Size     int64
	Class    content.MediaClass
	ModTime  time.Time
}

// URI returns the file:// form of the pick's path.
func (p Pick) URI() string {
	return "file://" + p.Path
}

func pickFor(path string, info os.FileInfo) Pick {
	mimeType := MimeFor(path)
	class := content.ClassifyType(mimeType)
	if class == content.MediaClassUnknown {
		class = content.MediaClassFile
	}
	return Pick{
		Path:     path,
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Size:     info.Size(),
		Class:    class,
		ModTime:  info.ModTime(),
	}
}

// PickFile builds a pick for a single regular file.
func PickFile(path string) (Pick, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Pick{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Pick{}, fmt.Errorf("attach: %w", err)
	}
	if info.IsDir() {
		return Pick{}, fmt.Errorf("attach: %s is a directory", path)
	}
	return pickFor(abs, info), nil
}

// Scan lists the regular files in dir, newest first. Hidden files are skipped.
func Scan(dir string) ([]Pick, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read drop folder: %w", err)
	}
	picks := make([]Pick, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		picks = append(picks, pickFor(filepath.Join(dir, entry.Name()), info))
	}
	sort.Slice(picks, func(i, j int) bool {
		return picks[i].ModTime.After(picks[j].ModTime)
	})
	return picks, nil
}

// DropWatcher watches a folder and emits a Pick once a new file stops
// changing.
type DropWatcher struct {
	dir       string
	fsWatcher *fsnotify.Watcher
	pending   map[string]*pendingFile
	pendingMu sync.Mutex
	picks     chan Pick
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	debounce  time.Duration
}

type pendingFile struct {
	size         int64
	lastModified time.Time
}

// NewDropWatcher starts watching dir. The directory is created if missing.
func NewDropWatcher(dir string, debounce time.Duration) (*DropWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create drop folder: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch drop folder: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &DropWatcher{
		dir:       dir,
		fsWatcher: fsWatcher,
		pending:   make(map[string]*pendingFile),
		picks:     make(chan Pick, 16),
		errors:    make(chan error, 4),
		done:      make(chan struct{}),
		debounce:  debounce,
	}
	go w.run()
	return w, nil
}

// Dir returns the watched folder.
func (w *DropWatcher) Dir() string {
	return w.dir
}

// Picks returns the channel of settled files.
func (w *DropWatcher) Picks() <-chan Pick {
	return w.picks
}

// Errors returns the channel for watcher errors.
func (w *DropWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher.
func (w *DropWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *DropWatcher) run() {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}

		case <-ticker.C:
			w.flushSettled(time.Now())
		}
	}
}

func (w *DropWatcher) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.pendingMu.Lock()
			delete(w.pending, event.Name)
			w.pendingMu.Unlock()
		}
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	entry, ok := w.pending[event.Name]
	if !ok {
		entry = &pendingFile{size: -1}
		w.pending[event.Name] = entry
	}
	entry.lastModified = time.Now()
}

// flushSettled emits files whose size has not changed since the last tick
// and that have been quiet for a full debounce interval.
func (w *DropWatcher) flushSettled(now time.Time) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	for path, entry := range w.pending {
		info, err := os.Stat(path)
		if err != nil {
			delete(w.pending, path)
			continue
		}
		if info.IsDir() {
			delete(w.pending, path)
			continue
		}
		if info.Size() != entry.size || now.Sub(entry.lastModified) < w.debounce {
			entry.size = info.Size()
			continue
		}
		delete(w.pending, path)
		select {
		case w.picks <- pickFor(path, info):
		default:
			// Channel full, drop pick
		}
	}
}
