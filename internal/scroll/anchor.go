package scroll

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is how far from the bottom still counts as pinned.
	DefaultThreshold = 150
	// HighlightDuration is how long a jumped-to message stays highlighted.
	HighlightDuration = time.Second
	// RetryDelay is the wait before the single retry of a failed jump.
	RetryDelay = 300 * time.Millisecond
)

// Timer is a cancellable scheduled callback. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn after d. time.AfterFunc is the default.
type Scheduler func(d time.Duration, fn func()) Timer

func realScheduler(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Action is what the host should do with the viewport.
type Action int

const (
	ActionNone Action = iota
	// ActionScrollToBottom follows the newest message.
	ActionScrollToBottom
	// ActionShowNewContent shows the "new content below" affordance.
	ActionShowNewContent
	// ActionScrollToIndex brings a specific message into view.
	ActionScrollToIndex
)

func (a Action) String() string {
	switch a {
	case ActionScrollToBottom:
		return "scroll-to-bottom"
	case ActionShowNewContent:
		return "show-new-content"
	case ActionScrollToIndex:
		return "scroll-to-index"
	default:
		return "none"
	}
}

// Directive is an instruction for the renderer.
type Directive struct {
	Action    Action
	Index     int
	MessageID string
}

// State is the scroll state exposed to the renderer.
type State struct {
	Pinned      bool
	Highlighted string
	// NewAuthors lists senders of messages that arrived while unpinned.
	NewAuthors []string
}

// Locator resolves a message id to its index in the rendered list.
type Locator func(messageID string) (int, bool)

// Option configures an Anchor.
type Option func(*Anchor)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(threshold int) Option {
	return func(a *Anchor) {
		if threshold >= 0 {
			a.threshold = threshold
		}
	}
}

// WithScheduler replaces the timer source.
func WithScheduler(s Scheduler) Option {
	return func(a *Anchor) {
		if s != nil {
			a.schedule = s
		}
	}
}

// WithDelays overrides the highlight window and retry delay.
func WithDelays(highlight, retry time.Duration) Option {
	return func(a *Anchor) {
		if highlight > 0 {
			a.highlightFor = highlight
		}
		if retry > 0 {
			a.retryDelay = retry
		}
	}
}

// OnChange registers a callback invoked when state changes from a timer.
func OnChange(fn func(State)) Option {
	return func(a *Anchor) {
		a.onChange = fn
	}
}

// OnDirective registers a callback for directives produced asynchronously,
// such as a retried jump.
func OnDirective(fn func(Directive)) Option {
	return func(a *Anchor) {
		a.onDirective = fn
	}
}

// Anchor tracks whether the viewport follows the newest message and drives
// jump-to-reply highlighting. Timers it schedules are cancelled by Close.
type Anchor struct {
	mu           sync.Mutex
	threshold    int
	pinned       bool
	highlighted  string
	newAuthors   []string
	highlightFor time.Duration
	retryDelay   time.Duration
	schedule     Scheduler
	clearTimer   Timer
	retryTimer   Timer
	closed       bool
	onChange     func(State)
	onDirective  func(Directive)
}

// New creates an anchor that starts pinned.
func New(opts ...Option) *Anchor {
	a := &Anchor{
		threshold:    DefaultThreshold,
		pinned:       true,
		highlightFor: HighlightDuration,
		retryDelay:   RetryDelay,
		schedule:     realScheduler,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetThreshold changes the pin distance used by later scroll updates.
func (a *Anchor) SetThreshold(threshold int) {
	if threshold < 0 {
		return
	}
	a.mu.Lock()
	a.threshold = threshold
	a.mu.Unlock()
}

// Threshold returns the current pin distance.
func (a *Anchor) Threshold() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threshold
}

// IsPinned reports whether a viewport at offset is strictly within threshold
// of the bottom, sits at the bottom, or the content fits entirely.
func IsPinned(offset, viewport, content, threshold int) bool {
	if content <= viewport {
		return true
	}
	bottom := offset + viewport
	return bottom >= content || bottom > content-threshold
}

// State returns a copy of the current state.
func (a *Anchor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Anchor) stateLocked() State {
	authors := make([]string, len(a.newAuthors))
	copy(authors, a.newAuthors)
	return State{Pinned: a.pinned, Highlighted: a.highlighted, NewAuthors: authors}
}

// Pinned reports the last computed pinned state.
func (a *Anchor) Pinned() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pinned
}

// OnScroll recomputes the pinned state. Reaching the bottom clears the
// new-content affordance.
func (a *Anchor) OnScroll(offset, viewport, content int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pinned = IsPinned(offset, viewport, content, a.threshold)
	if a.pinned {
		a.newAuthors = nil
	}
	return a.pinned
}

// OnNewMessage decides how to react to an appended message.
func (a *Anchor) OnNewMessage(author string) Directive {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pinned {
		return Directive{Action: ActionScrollToBottom}
	}
	if author != "" {
		found := false
		for _, existing := range a.newAuthors {
			if existing == author {
				found = true
				break
			}
		}
		if !found {
			a.newAuthors = append(a.newAuthors, author)
		}
	}
	return Directive{Action: ActionShowNewContent}
}

// Follow re-pins the viewport, as when the user taps the affordance or sends
// a message.
func (a *Anchor) Follow() Directive {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pinned = true
	a.newAuthors = nil
	return Directive{Action: ActionScrollToBottom}
}

// JumpTo scrolls to a replied message and highlights it. When locate misses,
// one retry is scheduled; its result is delivered through OnDirective.
func (a *Anchor) JumpTo(messageID string, locate Locator) (Directive, bool) {
	if messageID == "" || locate == nil {
		return Directive{}, false
	}
	if idx, ok := locate(messageID); ok {
		a.mu.Lock()
		d := a.highlightLocked(messageID, idx)
		a.mu.Unlock()
		return d, true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return Directive{}, false
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
	}
	a.retryTimer = a.schedule(a.retryDelay, func() {
		a.retryJump(messageID, locate)
	})
	return Directive{}, false
}

func (a *Anchor) retryJump(messageID string, locate Locator) {
	idx, ok := locate(messageID)

	a.mu.Lock()
	a.retryTimer = nil
	if a.closed || !ok {
		a.mu.Unlock()
		return
	}
	d := a.highlightLocked(messageID, idx)
	state := a.stateLocked()
	onDirective := a.onDirective
	onChange := a.onChange
	a.mu.Unlock()

	if onDirective != nil {
		onDirective(d)
	}
	if onChange != nil {
		onChange(state)
	}
}

func (a *Anchor) highlightLocked(messageID string, idx int) Directive {
	a.highlighted = messageID
	if a.clearTimer != nil {
		a.clearTimer.Stop()
	}
	if !a.closed {
		a.clearTimer = a.schedule(a.highlightFor, func() {
			a.clearHighlight(messageID)
		})
	}
	return Directive{Action: ActionScrollToIndex, Index: idx, MessageID: messageID}
}

func (a *Anchor) clearHighlight(messageID string) {
	a.mu.Lock()
	if a.closed || a.highlighted != messageID {
		a.mu.Unlock()
		return
	}
	a.highlighted = ""
	a.clearTimer = nil
	state := a.stateLocked()
	onChange := a.onChange
	a.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
}

// Close cancels pending timers. Later timer callbacks are ignored.
func (a *Anchor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.clearTimer != nil {
		a.clearTimer.Stop()
		a.clearTimer = nil
	}
	if a.retryTimer != nil {
		a.retryTimer.Stop()
		a.retryTimer = nil
	}
}
