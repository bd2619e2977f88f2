package walker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fluxbase-eu/sharedmods/internal/exports"
)

// State is the build state of one package within a session.
type State int32

const (
	Unseen State = iota
	Resolving
	Analyzing
	Building
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Resolving:
		return "resolving"
	case Analyzing:
		return "analyzing"
	case Building:
		return "building"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// entry tracks one claimed package. done is closed once the package reaches
// Done or Failed.
type entry struct {
	name  string
	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

func (e *entry) set(s State) {
	e.state.Store(int32(s))
}

func (e *entry) finish(s State) {
	e.set(s)
	e.once.Do(func() { close(e.done) })
}

// Session is the state of one walk: the visited map and the export cache.
// It is safe for concurrent use.
type Session struct {
	index *exports.Index

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSession creates a session around index.
func NewSession(index *exports.Index) *Session {
	return &Session{
		index:   index,
		entries: make(map[string]*entry),
	}
}

// Index returns the session's export cache.
func (s *Session) Index() *exports.Index {
	return s.index
}

// claim inserts name into the state map. The second return value is true
// only for the caller that inserted it.
func (s *Session) claim(name string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[name]; ok {
		return e, false
	}
	e := &entry{name: name, done: make(chan struct{})}
	s.entries[name] = e
	return e, true
}

// release forgets an entry so a later claim retries the package. Waiters on
// the released entry are woken.
func (s *Session) release(e *entry) {
	s.mu.Lock()
	if s.entries[e.name] == e {
		delete(s.entries, e.name)
	}
	s.mu.Unlock()
	e.finish(Failed)
}

// State returns the current state of name.
func (s *Session) State(name string) State {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Unseen
	}
	return State(e.state.Load())
}

// Wait blocks until name reaches Done or Failed and returns its state. An
// unclaimed name returns Unseen immediately.
func (s *Session) Wait(ctx context.Context, name string) (State, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Unseen, nil
	}

	select {
	case <-e.done:
		return State(e.state.Load()), nil
	case <-ctx.Done():
		return State(e.state.Load()), ctx.Err()
	}
}

// Visited returns the number of claimed packages.
func (s *Session) Visited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
