package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the playback state of a session.
type State string

const (
	StateLoading     State = "loading"
	StateReady       State = "ready"
	StatePlaying     State = "playing"
	StatePaused      State = "paused"
	StateUnavailable State = "unavailable"
	StateClosed      State = "closed"
)

const (
	// PollInterval is how often the position is read while playing.
	PollInterval = 100 * time.Millisecond
	// restartWindow is how close to the end play() restarts from zero.
	restartWindow = 100 * time.Millisecond
)

// Rates is the ordered set cycled through by CycleRate.
var Rates = []float64{0.75, 1.0, 1.5, 2.0}

var (
	ErrLoad            = errors.New("audio load failed")
	ErrSeekInFlight    = errors.New("seek already in progress")
	ErrNotReady        = errors.New("audio not ready")
	ErrClosed          = errors.New("audio session closed")
	ErrUnsupportedRate = errors.New("unsupported playback rate")
)

// Snapshot is the state exposed to the renderer.
type Snapshot struct {
	MessageID string
	State     State
	Duration  time.Duration
	Position  time.Duration
	Rate      float64
	Waveform  []float64
	Polling   bool
	Err       string
}

// Progress returns the played fraction in [0,1].
func (s Snapshot) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := float64(s.Position) / float64(s.Duration)
	if p > 1 {
		return 1
	}
	return p
}

// Option configures a Session.
type Option func(*Session)

// WithInterval overrides the position poll interval.
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithListener registers a callback invoked after every state change. It runs
// outside the session lock.
func WithListener(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.listener = fn
	}
}

// Session drives playback of one audio message. Sessions are independent:
// several may play at the same time.
type Session struct {
	mu        sync.Mutex
	messageID string
	handle    Handle
	state     State
	duration  time.Duration
	position  time.Duration
	rateIdx   int
	waveform  []float64
	seeking   bool
	err       string

	interval time.Duration
	stop     chan struct{}
	loops    sync.WaitGroup
	logger   *slog.Logger
	listener func(Snapshot)
}

// Open loads the track, reads its duration once and derives the waveform.
// On failure the handle is released and the returned session is left in the
// unavailable state alongside the error.
func Open(ctx context.Context, loader Loader, messageID, uri string, width int, opts ...Option) (*Session, error) {
	s := &Session{
		messageID: messageID,
		state:     StateLoading,
		rateIdx:   1,
		interval:  PollInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	handle, err := loader.Load(ctx, uri)
	if err != nil {
		s.fail(err)
		return s, fmt.Errorf("%w: %s: %v", ErrLoad, messageID, err)
	}
	duration, err := handle.Duration(ctx)
	if err != nil {
		_ = handle.Close()
		s.fail(err)
		return s, fmt.Errorf("%w: %s: duration: %v", ErrLoad, messageID, err)
	}

	_ = s.update(func() error {
		s.handle = handle
		s.duration = duration
		s.waveform = Waveform(messageID, duration, width)
		s.state = StateReady
		return nil
	})
	return s, nil
}

func (s *Session) fail(err error) {
	s.logger.Warn("audio_load_failed", "message_id", s.messageID, "error", err)
	_ = s.update(func() error {
		s.state = StateUnavailable
		s.err = err.Error()
		return nil
	})
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		MessageID: s.messageID,
		State:     s.state,
		Duration:  s.duration,
		Position:  s.position,
		Rate:      Rates[s.rateIdx],
		Waveform:  s.waveform,
		Polling:   s.stop != nil,
		Err:       s.err,
	}
}

// update runs fn under the lock and notifies the listener afterwards.
func (s *Session) update(fn func() error) error {
	s.mu.Lock()
	err := fn()
	snap := s.snapshotLocked()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		listener(snap)
	}
	return err
}

func (s *Session) usableLocked() error {
	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateLoading, StateUnavailable:
		return ErrNotReady
	}
	return nil
}

// Play starts playback, restarting from zero when at the end.
func (s *Session) Play(ctx context.Context) error {
	return s.update(func() error {
		if err := s.usableLocked(); err != nil {
			return err
		}
		if s.state == StatePlaying {
			return nil
		}
		if s.duration > 0 && s.position >= s.duration-restartWindow {
			if err := s.handle.Seek(ctx, 0); err != nil {
				return s.resourceErrorLocked("seek", err)
			}
			s.position = 0
		}
		if err := s.handle.Play(); err != nil {
			return s.resourceErrorLocked("play", err)
		}
		s.state = StatePlaying
		s.startLoopLocked()
		return nil
	})
}

// Pause stops playback and the poll loop, keeping the last position.
func (s *Session) Pause() error {
	return s.update(func() error {
		if err := s.usableLocked(); err != nil {
			return err
		}
		if s.state != StatePlaying {
			return nil
		}
		s.stopLoopLocked()
		if err := s.handle.Pause(); err != nil {
			return s.resourceErrorLocked("pause", err)
		}
		s.state = StatePaused
		return nil
	})
}

// Toggle plays when paused and pauses when playing.
func (s *Session) Toggle(ctx context.Context) error {
	if s.Snapshot().State == StatePlaying {
		return s.Pause()
	}
	return s.Play(ctx)
}

// Seek moves to target clamped to [0, duration]. A seek issued while another
// is in flight is ignored and reports ErrSeekInFlight.
func (s *Session) Seek(ctx context.Context, target time.Duration) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.seeking {
		s.mu.Unlock()
		return ErrSeekInFlight
	}
	target = clamp(target, 0, s.duration)
	s.seeking = true
	handle := s.handle
	s.mu.Unlock()

	err := handle.Seek(ctx, target)

	return s.update(func() error {
		s.seeking = false
		if err != nil {
			s.logger.Warn("audio_seek_failed", "message_id", s.messageID, "error", err)
			return fmt.Errorf("seek %s: %w", s.messageID, err)
		}
		if s.state != StateClosed {
			s.position = target
		}
		return nil
	})
}

// SetRate applies one of the supported rates.
func (s *Session) SetRate(rate float64) error {
	idx := -1
	for i, r := range Rates {
		if r == rate {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %v", ErrUnsupportedRate, rate)
	}
	return s.update(func() error {
		if err := s.usableLocked(); err != nil {
			return err
		}
		if err := s.handle.SetRate(rate); err != nil {
			return s.resourceErrorLocked("rate", err)
		}
		s.rateIdx = idx
		return nil
	})
}

// CycleRate advances to the next rate in Rates, wrapping around.
func (s *Session) CycleRate() (float64, error) {
	s.mu.Lock()
	next := Rates[(s.rateIdx+1)%len(Rates)]
	s.mu.Unlock()
	if err := s.SetRate(next); err != nil {
		return 0, err
	}
	return next, nil
}

// Close stops the poll loop and releases the device handle. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.stopLoopLocked()
	handle := s.handle
	s.handle = nil
	s.state = StateClosed
	s.mu.Unlock()

	s.loops.Wait()
	if handle == nil {
		return nil
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("close audio %s: %w", s.messageID, err)
	}
	return nil
}

func (s *Session) resourceErrorLocked(op string, err error) error {
	s.logger.Warn("audio_device_error", "message_id", s.messageID, "op", op, "error", err)
	s.stopLoopLocked()
	if s.state == StatePlaying {
		s.state = StatePaused
	}
	s.err = err.Error()
	return fmt.Errorf("%s %s: %w", op, s.messageID, err)
}

func (s *Session) startLoopLocked() {
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.loops.Add(1)
	go s.pollLoop(stop)
}

func (s *Session) stopLoopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

func (s *Session) pollLoop(stop chan struct{}) {
	defer s.loops.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.tick(stop) {
				return
			}
		}
	}
}

// tick reads the device position once. It returns false when the loop that
// owns stop should exit.
func (s *Session) tick(stop chan struct{}) bool {
	keepGoing := true
	_ = s.update(func() error {
		if s.stop != stop || s.state != StatePlaying {
			keepGoing = false
			return nil
		}
		if s.seeking {
			return nil
		}
		status, err := s.handle.Status()
		if err != nil {
			keepGoing = false
			return s.resourceErrorLocked("status", err)
		}
		if status.Finished || (s.duration > 0 && status.Position >= s.duration) {
			s.finishLocked()
			keepGoing = false
			return nil
		}
		s.position = clamp(status.Position, 0, s.duration)
		return nil
	})
	return keepGoing
}

// finishLocked handles natural completion: rewind to zero, back to ready.
func (s *Session) finishLocked() {
	s.stopLoopLocked()
	s.position = 0
	s.state = StateReady
	if err := s.handle.Seek(context.Background(), 0); err != nil {
		s.logger.Warn("audio_rewind_failed", "message_id", s.messageID, "error", err)
	}
}

func clamp(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if hi > lo && v > hi {
		return hi
	}
	if hi <= lo && v > lo {
		return lo
	}
	return v
}
