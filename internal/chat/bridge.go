package chat

import (
	"sync"
	"sync/atomic"

	"github.com/adamavenir/huddle/internal/audio"
	"github.com/adamavenir/huddle/internal/conversation"
	"github.com/adamavenir/huddle/internal/recorder"
	"github.com/adamavenir/huddle/internal/scroll"
	tea "github.com/charmbracelet/bubbletea"
)

const bridgeBuffer = 256

type controllerEventMsg struct{ event conversation.Event }

type directiveMsg struct{ directive scroll.Directive }

type anchorStateMsg struct{ state scroll.State }

type audioMsg struct{ snapshot audio.Snapshot }

type recorderMsg struct{ snapshot recorder.Snapshot }

// Bridge carries engine callbacks into the program. Callbacks run on engine
// goroutines (and on the update goroutine for synchronous controller calls),
// so sends never block; when the buffer is full the event is dropped and the
// next render picks up the state anyway.
type Bridge struct {
	events    chan tea.Msg
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewBridge creates a bridge. Wire its methods into the controller, anchor
// and engines before starting the program.
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, bridgeBuffer),
		done:   make(chan struct{}),
	}
}

func (b *Bridge) send(msg tea.Msg) {
	select {
	case <-b.done:
	case b.events <- msg:
	default:
		b.dropped.Add(1)
	}
}

// ControllerEvent is a conversation.Options.OnEvent callback.
func (b *Bridge) ControllerEvent(ev conversation.Event) { b.send(controllerEventMsg{event: ev}) }

// AnchorChanged is a scroll.OnChange callback.
func (b *Bridge) AnchorChanged(state scroll.State) { b.send(anchorStateMsg{state: state}) }

// Directive is a scroll.OnDirective callback.
func (b *Bridge) Directive(d scroll.Directive) { b.send(directiveMsg{directive: d}) }

// AudioChanged is an audio.WithListener callback.
func (b *Bridge) AudioChanged(snap audio.Snapshot) { b.send(audioMsg{snapshot: snap}) }

// RecorderChanged is a recorder.WithListener callback.
func (b *Bridge) RecorderChanged(snap recorder.Snapshot) { b.send(recorderMsg{snapshot: snap}) }

// Dropped reports how many events were discarded on a full buffer.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops delivery and releases any waiting command.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// wait returns a command that yields the next bridged event.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.done:
			return nil
		}
	}
}
