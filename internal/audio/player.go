package audio

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Player owns the audio sessions of one conversation, keyed by message id.
// A session is created when its message is first rendered and closed when
// the message view goes away.
type Player struct {
	mu       sync.Mutex
	loader   Loader
	opts     []Option
	sessions map[string]*Session
}

// NewPlayer creates a player that opens handles through loader.
func NewPlayer(loader Loader, opts ...Option) *Player {
	return &Player{loader: loader, opts: opts, sessions: make(map[string]*Session)}
}

// Mount returns the session for messageID, opening it on first use. A failed
// load is kept so the renderer can show the disabled player.
func (p *Player) Mount(ctx context.Context, messageID, uri string, width int) (*Session, error) {
	p.mu.Lock()
	if s, ok := p.sessions[messageID]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	s, err := Open(ctx, p.loader, messageID, uri, width, p.opts...)

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sessions[messageID]; ok {
		// Lost a race with another mount; keep the first one.
		_ = s.Close()
		return existing, nil
	}
	p.sessions[messageID] = s
	return s, err
}

// Session returns a mounted session.
func (p *Player) Session(messageID string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[messageID]
	return s, ok
}

// Unmount closes and forgets a session.
func (p *Player) Unmount(messageID string) error {
	p.mu.Lock()
	s, ok := p.sessions[messageID]
	delete(p.sessions, messageID)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close()
}

// Playing lists the message ids currently playing.
func (p *Player) Playing() []string {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	var ids []string
	for _, s := range sessions {
		snap := s.Snapshot()
		if snap.State == StatePlaying {
			ids = append(ids, snap.MessageID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close releases every session.
func (p *Player) Close() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
