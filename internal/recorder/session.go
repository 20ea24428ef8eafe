package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// State is the lifecycle position of a recording session.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Outcome records how a stopped session ended.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSent      Outcome = "sent"
	OutcomeDiscarded Outcome = "discarded"
)

const (
	// MinDuration is the shortest recording that is kept on stop.
	MinDuration = 500 * time.Millisecond
	// LevelInterval is the amplitude animation tick.
	LevelInterval = 150 * time.Millisecond
	// MaxLevels bounds the amplitude history kept for rendering.
	MaxLevels = 48
)

var (
	ErrStart           = errors.New("recorder start failed")
	ErrTooShort        = errors.New("recording too short")
	ErrConfirmRequired = errors.New("discard requires confirmation")
	ErrSessionClosed   = errors.New("recording session closed")
	ErrInvalidState    = errors.New("invalid recorder state")
)

// Recording is the artifact produced by a kept session.
type Recording struct {
	URI      string
	Duration time.Duration
	// Seconds is Duration rounded to the nearest whole second.
	Seconds int
}

// Snapshot is the state exposed to the renderer.
type Snapshot struct {
	State     State
	Outcome   Outcome
	Elapsed   time.Duration
	Levels    []float64
	Animating bool
	Err       string
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the time source used for elapsed accounting.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterval overrides the amplitude animation interval.
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

// WithListener registers a callback invoked after every state change.
func WithListener(fn func(Snapshot)) Option {
	return func(s *Session) {
		s.listener = fn
	}
}

// Session captures one voice message. Elapsed time excludes paused spans.
type Session struct {
	mu      sync.Mutex
	device  Device
	capture Capture
	state   State
	outcome Outcome
	err     string

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	levels      []float64

	now      func() time.Time
	interval time.Duration
	stop     chan struct{}
	loops    sync.WaitGroup
	logger   *slog.Logger
	listener func(Snapshot)
}

// NewSession creates an idle session over device.
func NewSession(device Device, opts ...Option) *Session {
	s := &Session{
		device:   device,
		state:    StateIdle,
		now:      time.Now,
		interval: LevelInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	levels := make([]float64, len(s.levels))
	copy(levels, s.levels)
	return Snapshot{
		State:     s.state,
		Outcome:   s.outcome,
		Elapsed:   s.elapsedLocked(),
		Levels:    levels,
		Animating: s.stop != nil,
		Err:       s.err,
	}
}

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

// Elapsed returns recorded time so far, frozen while paused.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	end := s.now()
	if s.state == StatePaused || s.state == StateStopped {
		end = s.pausedAt
	}
	elapsed := end.Sub(s.startedAt) - s.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Start begins capture. A device failure leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		if state == StateStopped {
			return ErrSessionClosed
		}
		return fmt.Errorf("%w: start while %s", ErrInvalidState, state)
	}
	s.mu.Unlock()

	capture, err := s.device.Start(ctx)
	if err != nil {
		s.logger.Warn("recorder_start_failed", "error", err)
		_ = s.update(func() error {
			s.err = err.Error()
			return nil
		})
		return fmt.Errorf("%w: %v", ErrStart, err)
	}

	return s.update(func() error {
		if s.state != StateIdle {
			_ = capture.Abort()
			return fmt.Errorf("%w: start while %s", ErrInvalidState, s.state)
		}
		s.capture = capture
		s.state = StateRecording
		s.startedAt = s.now()
		s.pausedTotal = 0
		s.err = ""
		s.startLoopLocked()
		return nil
	})
}

// Pause freezes elapsed time and the amplitude animation.
func (s *Session) Pause() error {
	return s.update(func() error {
		if s.state != StateRecording {
			return fmt.Errorf("%w: pause while %s", ErrInvalidState, s.state)
		}
		if err := s.capture.Pause(); err != nil {
			return s.deviceErrorLocked("pause", err)
		}
		s.stopLoopLocked()
		s.pausedAt = s.now()
		s.state = StatePaused
		return nil
	})
}

// Resume continues a paused capture, adding the pause to the excluded total.
func (s *Session) Resume() error {
	return s.update(func() error {
		if s.state != StatePaused {
			return fmt.Errorf("%w: resume while %s", ErrInvalidState, s.state)
		}
		if err := s.capture.Resume(); err != nil {
			return s.deviceErrorLocked("resume", err)
		}
		if gap := s.now().Sub(s.pausedAt); gap > 0 {
			s.pausedTotal += gap
		}
		s.pausedAt = time.Time{}
		s.state = StateRecording
		s.startLoopLocked()
		return nil
	})
}

// Toggle pauses a running capture or resumes a paused one.
func (s *Session) Toggle() error {
	if s.Snapshot().State == StatePaused {
		return s.Resume()
	}
	return s.Pause()
}

// Stop ends the session. A kept recording of at least MinDuration is
// returned; discard or a shorter recording yields nil. Shorter recordings
// also report ErrTooShort.
func (s *Session) Stop(ctx context.Context, discard bool) (*Recording, error) {
	s.mu.Lock()
	if s.state != StateRecording && s.state != StatePaused {
		state := s.state
		s.mu.Unlock()
		if state == StateStopped {
			return nil, ErrSessionClosed
		}
		return nil, fmt.Errorf("%w: stop while %s", ErrInvalidState, state)
	}
	if s.state == StateRecording {
		s.pausedAt = s.now()
	}
	s.stopLoopLocked()
	elapsed := s.elapsedFrozenLocked()
	capture := s.capture
	s.capture = nil
	s.state = StateStopped
	s.mu.Unlock()
	s.loops.Wait()

	if discard || elapsed < MinDuration {
		if err := capture.Abort(); err != nil {
			s.logger.Warn("recorder_abort_failed", "error", err)
		}
		_ = s.update(func() error {
			s.outcome = OutcomeDiscarded
			return nil
		})
		if !discard {
			return nil, fmt.Errorf("%w: %s", ErrTooShort, elapsed)
		}
		return nil, nil
	}

	uri, err := capture.Finish(ctx)
	if err != nil {
		s.logger.Warn("recorder_finish_failed", "error", err)
		_ = s.update(func() error {
			s.outcome = OutcomeDiscarded
			s.err = err.Error()
			return nil
		})
		return nil, fmt.Errorf("finish recording: %w", err)
	}
	_ = s.update(func() error {
		s.outcome = OutcomeSent
		return nil
	})
	return &Recording{
		URI:      uri,
		Duration: elapsed,
		Seconds:  int(math.Round(elapsed.Seconds())),
	}, nil
}

// elapsedFrozenLocked computes elapsed with pausedAt already set.
func (s *Session) elapsedFrozenLocked() time.Duration {
	elapsed := s.pausedAt.Sub(s.startedAt) - s.pausedTotal
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Discard deletes an active recording. Without confirmation it reports
// ErrConfirmRequired and leaves the session untouched.
func (s *Session) Discard(ctx context.Context, confirmed bool) error {
	state := s.Snapshot().State
	if state == StateIdle {
		return s.update(func() error {
			s.state = StateStopped
			s.outcome = OutcomeDiscarded
			return nil
		})
	}
	if !confirmed && (state == StateRecording || state == StatePaused) {
		return ErrConfirmRequired
	}
	_, err := s.Stop(ctx, true)
	return err
}

// Close tears the session down on every exit path, aborting any capture.
func (s *Session) Close() error {
	s.mu.Lock()
	s.stopLoopLocked()
	capture := s.capture
	s.capture = nil
	if s.state != StateStopped {
		if s.state == StateRecording {
			s.pausedAt = s.now()
		}
		s.state = StateStopped
		if capture != nil {
			s.outcome = OutcomeDiscarded
		}
	}
	s.mu.Unlock()
	s.loops.Wait()
	if capture == nil {
		return nil
	}
	if err := capture.Abort(); err != nil {
		return fmt.Errorf("abort recording: %w", err)
	}
	return nil
}

func (s *Session) deviceErrorLocked(op string, err error) error {
	s.logger.Warn("recorder_device_error", "op", op, "error", err)
	s.err = err.Error()
	return fmt.Errorf("%s recording: %w", op, err)
}

func (s *Session) startLoopLocked() {
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.loops.Add(1)
	go s.levelLoop(stop)
}

func (s *Session) stopLoopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

func (s *Session) levelLoop(stop chan struct{}) {
	defer s.loops.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.sample(stop) {
				return
			}
		}
	}
}

// sample appends one amplitude reading. It returns false when the loop that
// owns stop should exit.
func (s *Session) sample(stop chan struct{}) bool {
	keepGoing := true
	_ = s.update(func() error {
		if s.stop != stop || s.state != StateRecording || s.capture == nil {
			keepGoing = false
			return nil
		}
		level := s.capture.Level()
		if level < 0 {
			level = 0
		}
		if level > 1 {
			level = 1
		}
		s.levels = append(s.levels, level)
		if len(s.levels) > MaxLevels {
			s.levels = s.levels[len(s.levels)-MaxLevels:]
		}
		return nil
	})
	return keepGoing
}
