package scroll

import (
	"testing"
	"time"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) Timer {
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) fire(t *testing.T, i int) {
	t.Helper()
	if i >= len(s.timers) {
		t.Fatalf("timer %d not scheduled (have %d)", i, len(s.timers))
	}
	if s.timers[i].stopped {
		t.Fatalf("timer %d was stopped", i)
	}
	s.timers[i].fn()
}

func locatorOf(ids ...string) Locator {
	return func(id string) (int, bool) {
		for i, existing := range ids {
			if existing == id {
				return i, true
			}
		}
		return 0, false
	}
}

func TestIsPinned(t *testing.T) {
	cases := []struct {
		name                      string
		offset, viewport, content int
		want                      bool
	}{
		{"top of tall content", 0, 850, 1000, false},
		{"within threshold", 150, 850, 1000, true},
		{"just outside threshold", 0, 700, 1000, false},
		{"content fits", 0, 850, 600, true},
		{"at bottom", 150, 850, 1000, true},
		{"exactly threshold away", 0, 850, 1000, false},
		{"one past threshold", 1, 850, 1000, true},
	}
	for _, tc := range cases {
		if got := IsPinned(tc.offset, tc.viewport, tc.content, DefaultThreshold); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsPinnedZeroThreshold(t *testing.T) {
	cases := []struct {
		name                      string
		offset, viewport, content int
		want                      bool
	}{
		{"at bottom", 150, 850, 1000, true},
		{"one line up", 149, 850, 1000, false},
	}
	for _, tc := range cases {
		if got := IsPinned(tc.offset, tc.viewport, tc.content, 0); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestNewMessageWhilePinnedScrolls(t *testing.T) {
	a := New()
	a.OnScroll(150, 850, 1000)
	d := a.OnNewMessage("alice")
	if d.Action != ActionScrollToBottom {
		t.Fatalf("expected scroll-to-bottom, got %s", d.Action)
	}
	if len(a.State().NewAuthors) != 0 {
		t.Fatal("expected no affordance while pinned")
	}
}

func TestNewMessageWhileUnpinnedShowsAffordance(t *testing.T) {
	a := New()
	a.OnScroll(0, 850, 1000)
	if d := a.OnNewMessage("alice"); d.Action != ActionShowNewContent {
		t.Fatalf("expected show-new-content, got %s", d.Action)
	}
	a.OnNewMessage("alice")
	a.OnNewMessage("bob")
	if got := a.State().NewAuthors; len(got) != 2 {
		t.Fatalf("expected two authors, got %v", got)
	}
	a.OnScroll(150, 850, 1000)
	if got := a.State().NewAuthors; len(got) != 0 {
		t.Fatalf("expected affordance cleared at bottom, got %v", got)
	}
}

func TestFollowRepins(t *testing.T) {
	a := New()
	a.OnScroll(0, 850, 1000)
	a.OnNewMessage("alice")
	if d := a.Follow(); d.Action != ActionScrollToBottom {
		t.Fatalf("expected scroll-to-bottom, got %s", d.Action)
	}
	st := a.State()
	if !st.Pinned || len(st.NewAuthors) != 0 {
		t.Fatalf("expected pinned without affordance, got %+v", st)
	}
}

func TestJumpHighlightsThenClears(t *testing.T) {
	sched := &fakeScheduler{}
	var changes []State
	a := New(WithScheduler(sched.schedule), OnChange(func(s State) { changes = append(changes, s) }))

	d, ok := a.JumpTo("m2", locatorOf("m1", "m2", "m3"))
	if !ok || d.Action != ActionScrollToIndex || d.Index != 1 {
		t.Fatalf("unexpected directive %+v ok=%v", d, ok)
	}
	if a.State().Highlighted != "m2" {
		t.Fatal("expected highlight set")
	}
	if sched.timers[0].delay != HighlightDuration {
		t.Fatalf("expected %v highlight window, got %v", HighlightDuration, sched.timers[0].delay)
	}
	sched.fire(t, 0)
	if a.State().Highlighted != "" {
		t.Fatal("expected highlight cleared")
	}
	if len(changes) != 1 {
		t.Fatalf("expected one change notification, got %d", len(changes))
	}
}

func TestSecondJumpReplacesHighlightTimer(t *testing.T) {
	sched := &fakeScheduler{}
	a := New(WithScheduler(sched.schedule))
	locate := locatorOf("m1", "m2")

	a.JumpTo("m1", locate)
	a.JumpTo("m2", locate)
	if !sched.timers[0].stopped {
		t.Fatal("expected first clear timer cancelled")
	}
	sched.fire(t, 1)
	if a.State().Highlighted != "" {
		t.Fatal("expected highlight cleared")
	}
}

func TestJumpRetriesOnce(t *testing.T) {
	sched := &fakeScheduler{}
	var directives []Directive
	a := New(WithScheduler(sched.schedule), OnDirective(func(d Directive) { directives = append(directives, d) }))

	ids := []string{"m1"}
	locate := func(id string) (int, bool) { return locatorOf(ids...)(id) }

	if _, ok := a.JumpTo("m9", locate); ok {
		t.Fatal("expected miss")
	}
	if len(sched.timers) != 1 || sched.timers[0].delay != RetryDelay {
		t.Fatalf("expected one retry scheduled, got %d", len(sched.timers))
	}

	ids = append(ids, "m9")
	sched.fire(t, 0)
	if len(directives) != 1 || directives[0].Index != 1 {
		t.Fatalf("expected retried directive, got %+v", directives)
	}
	if a.State().Highlighted != "m9" {
		t.Fatal("expected highlight after retry")
	}
}

func TestJumpGivesUpAfterRetry(t *testing.T) {
	sched := &fakeScheduler{}
	var directives []Directive
	a := New(WithScheduler(sched.schedule), OnDirective(func(d Directive) { directives = append(directives, d) }))

	a.JumpTo("missing", locatorOf("m1"))
	sched.fire(t, 0)
	if len(directives) != 0 {
		t.Fatalf("expected no directive, got %+v", directives)
	}
	if len(sched.timers) != 1 {
		t.Fatalf("expected no second retry, got %d timers", len(sched.timers))
	}
}

func TestCloseCancelsTimers(t *testing.T) {
	sched := &fakeScheduler{}
	a := New(WithScheduler(sched.schedule))
	a.JumpTo("m1", locatorOf("m1"))
	a.JumpTo("missing", locatorOf("m1"))
	a.Close()
	for i, tm := range sched.timers {
		if !tm.stopped {
			t.Fatalf("timer %d still active after close", i)
		}
	}
	// A callback racing with Close must not resurrect state.
	sched.timers[1].fn()
	if a.State().Highlighted != "m1" {
		t.Fatalf("expected state untouched after close, got %q", a.State().Highlighted)
	}
}
