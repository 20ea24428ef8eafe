package audio

import (
	"context"
	"time"
)

// Status is a point-in-time reading from a device handle.
type Status struct {
	Position time.Duration
	Playing  bool
	// Finished is set once playback reached the end on its own.
	Finished bool
}

// Handle is a loaded track on the device audio subsystem.
type Handle interface {
	Duration(ctx context.Context) (time.Duration, error)
	Play() error
	Pause() error
	Seek(ctx context.Context, pos time.Duration) error
	SetRate(rate float64) error
	Status() (Status, error)
	Close() error
}

// Loader opens device handles for remote audio.
type Loader interface {
	Load(ctx context.Context, uri string) (Handle, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, uri string) (Handle, error)

func (f LoaderFunc) Load(ctx context.Context, uri string) (Handle, error) {
	return f(ctx, uri)
}
