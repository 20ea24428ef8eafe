package recorder

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileDevice writes a placeholder artifact per capture into Dir. Terminal
// hosts with no microphone access use it; the artifact is uploaded like any
// other voice note.
type FileDevice struct {
	Dir string
}

func (d FileDevice) Start(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := d.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recordings dir: %w", err)
	}
	path := filepath.Join(dir, "voice-"+uuid.NewString()+".m4a")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileCapture{file: f, rng: rand.New(rand.NewSource(int64(len(path))))}, nil
}

type fileCapture struct {
	mu     sync.Mutex
	file   *os.File
	rng    *rand.Rand
	paused bool
	done   bool
}

func (c *fileCapture) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *fileCapture) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *fileCapture) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.done {
		return 0
	}
	return 0.2 + c.rng.Float64()*0.8
}

func (c *fileCapture) Finish(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return "", fmt.Errorf("capture already finished")
	}
	c.done = true
	if err := c.file.Close(); err != nil {
		return "", err
	}
	return "file://" + c.file.Name(), ctx.Err()
}

func (c *fileCapture) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true
	_ = c.file.Close()
	if err := os.Remove(c.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
