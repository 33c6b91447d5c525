package spacetraveling

import (
	"sync"
	"time"

	"github.com/eringen/spacetraveling/pagination"
	"github.com/eringen/spacetraveling/posts"
)

type sessionEntry struct {
	state   pagination.State
	touched time.Time
}

// Sessions holds each visitor's pagination state, keyed by the id stored in
// the visitor's cookie. Every change goes through pagination.Transition while
// the lock is held, so concurrent requests for one visitor are serialized.
//
// At most max entries are kept; a new visitor beyond that evicts the least
// recently used idle entry.
type Sessions struct {
	mu     sync.Mutex
	states map[string]*sessionEntry
	ttl    time.Duration
	max    int
	stop   chan struct{}
	once   sync.Once
}

// DefaultMaxSessions caps the registry when no limit is configured.
const DefaultMaxSessions = 10000

// NewSessions creates a registry whose idle entries expire after ttl and
// which holds at most max entries.
func NewSessions(ttl time.Duration, max int) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if max <= 0 {
		max = DefaultMaxSessions
	}
	s := &Sessions{
		states: make(map[string]*sessionEntry),
		ttl:    ttl,
		max:    max,
		stop:   make(chan struct{}),
	}
	go s.cleanup()
	return s
}

func (s *Sessions) cleanup() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.expire(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *Sessions) expire(now time.Time) {
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	for id, e := range s.states {
		if !e.state.Loading && e.touched.Before(cutoff) {
			delete(s.states, id)
		}
	}
	s.mu.Unlock()
}

// Close stops the expiry goroutine.
func (s *Sessions) Close() {
	s.once.Do(func() { close(s.stop) })
}

// Reset starts the visitor's listing over from initial, as a page load does.
// A known visitor keeps advancing its load generation, so a load started
// before the reset cannot land in the new listing.
func (s *Sessions) Reset(id string, initial posts.Page, dedupe bool) pagination.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.states[id]; ok {
		e.state, _ = pagination.Transition(e.state, pagination.Reset{Page: initial})
		e.state.Dedupe = dedupe
		e.touched = time.Now()
		return e.state
	}
	if len(s.states) >= s.max {
		s.evictOldest()
	}
	st := pagination.New(initial, dedupe)
	s.states[id] = &sessionEntry{state: st, touched: time.Now()}
	return st
}

// evictOldest drops the least recently used entry, preferring idle ones.
// It must be called with s.mu held.
func (s *Sessions) evictOldest() {
	var victim string
	var oldest time.Time
	found := false
	for id, e := range s.states {
		if e.state.Loading {
			continue
		}
		if !found || e.touched.Before(oldest) {
			victim, oldest, found = id, e.touched, true
		}
	}
	if !found {
		for id, e := range s.states {
			if !found || e.touched.Before(oldest) {
				victim, oldest, found = id, e.touched, true
			}
		}
	}
	if found {
		delete(s.states, victim)
	}
}

// Get returns the visitor's current state.
func (s *Sessions) Get(id string) (pagination.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[id]
	if !ok {
		return pagination.State{}, false
	}
	return e.state, true
}

// Apply runs ev against the visitor's state and stores the result. On a
// rejected transition the stored state is left as it was.
func (s *Sessions) Apply(id string, ev pagination.Event) (pagination.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.states[id]
	if !ok {
		return pagination.State{}, ErrUnknownSession
	}
	next, err := pagination.Transition(e.state, ev)
	if err != nil {
		return e.state, err
	}
	e.state = next
	e.touched = time.Now()
	return next, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
