package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Environment overrides.
const (
	EnvLevel = "HUDDLE_LOG_LEVEL"
	EnvSink  = "HUDDLE_LOG_SINK" // e.g. "file:/path/to/log", "stderr", "discard"
)

// ParseLevel maps a level name to a slog level. Unknown names are Info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a text logger. Empty level and sink fall back to the
// environment, then to Info on the fallback writer. The returned closer
// releases a file sink and is a no-op otherwise.
func New(level, sink string, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(EnvLevel)
	}
	if strings.TrimSpace(sink) == "" {
		sink = os.Getenv(EnvSink)
	}
	if fallback == nil {
		fallback = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	sink = strings.TrimSpace(sink)
	switch {
	case strings.HasPrefix(sink, "file:"):
		path := strings.TrimPrefix(sink, "file:")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return slog.New(slog.NewTextHandler(f, opts)), f, nil
	case sink == "discard":
		return slog.New(slog.NewTextHandler(io.Discard, opts)), nopCloser{}, nil
	case sink == "stdout":
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nopCloser{}, nil
	case sink == "stderr":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nopCloser{}, nil
	default:
		return slog.New(slog.NewTextHandler(fallback, opts)), nopCloser{}, nil
	}
}

// Init builds a logger like New and installs it as the slog default. A sink
// that cannot be opened falls back to stderr with a warning.
func Init(level, sink string, fallback io.Writer) io.Closer {
	logger, closer, err := New(level, sink, fallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		logger, closer, _ = New(level, "stderr", nil)
	}
	slog.SetDefault(logger)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
