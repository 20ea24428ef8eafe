package audio

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// DefaultSimDuration is used when a URI carries no duration hint.
const DefaultSimDuration = 30 * time.Second

// SimLoader opens clock-driven handles that advance position in real time
// without producing sound. Terminal hosts use it in place of a device.
// A "#t=<seconds>" fragment or "duration" query parameter sets the length.
type SimLoader struct {
	Now func() time.Time
}

func (l SimLoader) Load(ctx context.Context, uri string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}
	return &simHandle{duration: durationHint(parsed), now: now, rate: 1}, nil
}

func durationHint(u *url.URL) time.Duration {
	candidates := []string{u.Query().Get("duration")}
	if frag, err := url.ParseQuery(u.Fragment); err == nil {
		candidates = append(candidates, frag.Get("t"))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if d, err := time.ParseDuration(c + "s"); err == nil && d > 0 {
			return d
		}
	}
	return DefaultSimDuration
}

type simHandle struct {
	mu        sync.Mutex
	duration  time.Duration
	base      time.Duration
	startedAt time.Time
	playing   bool
	rate      float64
	now       func() time.Time
	closed    bool
}

func (h *simHandle) Duration(ctx context.Context) (time.Duration, error) {
	return h.duration, ctx.Err()
}

func (h *simHandle) positionLocked() time.Duration {
	if !h.playing {
		return h.base
	}
	elapsed := h.now().Sub(h.startedAt)
	return h.base + time.Duration(float64(elapsed)*h.rate)
}

func (h *simHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing {
		return nil
	}
	h.playing = true
	h.startedAt = h.now()
	return nil
}

func (h *simHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = h.positionLocked()
	h.playing = false
	return nil
}

func (h *simHandle) Seek(ctx context.Context, pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = pos
	h.startedAt = h.now()
	return ctx.Err()
}

func (h *simHandle) SetRate(rate float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.base = h.positionLocked()
	h.startedAt = h.now()
	h.rate = rate
	return nil
}

func (h *simHandle) Status() (Status, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pos := h.positionLocked()
	finished := h.playing && pos >= h.duration
	if finished {
		h.playing = false
		h.base = h.duration
		pos = h.duration
	}
	return Status{Position: pos, Playing: h.playing, Finished: finished}, nil
}

func (h *simHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.playing = false
	return nil
}
