// Package pagination models the "load more" listing as an immutable state
// value and a single transition function.
//
// A State holds the initial page (rendered first, never modified), the posts
// accumulated by later loads, the cursor to the next page and whether a load
// is in flight. Transition is the only way to derive a new State, and it
// refuses a second load while one is running, so overlapping "load more"
// requests cannot race each other's cursor and merge updates.
//
// Every LoadRequested and Reset advances State.Generation. A result must
// carry the generation of the load that asked for it; results from a load
// that was superseded by a Reset are refused.
package pagination

import (
	"errors"

	"github.com/eringen/spacetraveling/posts"
)

var (
	// ErrNoMorePages is returned when a load is requested without a cursor.
	ErrNoMorePages = errors.New("pagination: no more pages")
	// ErrLoadInFlight is returned when a load is requested while another runs.
	ErrLoadInFlight = errors.New("pagination: load already in flight")
	// ErrNotLoading is returned when a result arrives for no pending load,
	// or for a load other than the pending one.
	ErrNotLoading = errors.New("pagination: no load in flight")
)

// State is the listing as the visitor sees it. Copy it freely; slices are
// never written to after a State is returned.
type State struct {
	Cursor  posts.Cursor
	Initial []posts.Summary
	More    []posts.Summary
	Loading bool
	Err     error
	// Generation identifies the pending load while Loading is set.
	Generation uint64
	// Dedupe drops incoming posts whose uid is already displayed.
	Dedupe bool
}

// New starts a listing from its initial page.
func New(initial posts.Page, dedupe bool) State {
	return State{
		Cursor:  initial.Cursor,
		Initial: initial.Results,
		Dedupe:  dedupe,
	}
}

// HasMore reports whether the load-more control should be offered.
func (s State) HasMore() bool { return !s.Cursor.Absent() }

// Posts returns the displayed list: the initial results followed by every
// accumulated page, in fetch order.
func (s State) Posts() []posts.Summary {
	out := make([]posts.Summary, 0, len(s.Initial)+len(s.More))
	out = append(out, s.Initial...)
	return append(out, s.More...)
}

// Event is an input to Transition.
type Event interface {
	event()
}

// LoadRequested marks the start of a load for the current cursor.
type LoadRequested struct{}

// PageLoaded delivers the next page for the load started at Generation.
type PageLoaded struct {
	Page       posts.Page
	Generation uint64
}

// LoadFailed reports that the load started at Generation failed.
type LoadFailed struct {
	Err        error
	Generation uint64
}

// Reset replaces the whole listing with a fresh initial page.
type Reset struct {
	Page posts.Page
}

func (LoadRequested) event() {}
func (PageLoaded) event()    {}
func (LoadFailed) event()    {}
func (Reset) event()         {}

// Transition derives the next state. When the event is not allowed in the
// current state it returns the state unchanged together with an error.
func Transition(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case LoadRequested:
		if s.Loading {
			return s, ErrLoadInFlight
		}
		if !s.HasMore() {
			return s, ErrNoMorePages
		}
		s.Loading = true
		s.Err = nil
		s.Generation++
		return s, nil
	case PageLoaded:
		if !s.Loading || ev.Generation != s.Generation {
			return s, ErrNotLoading
		}
		s.Cursor = ev.Page.Cursor
		s.More = merge(s, ev.Page.Results)
		s.Loading = false
		s.Err = nil
		return s, nil
	case LoadFailed:
		if !s.Loading || ev.Generation != s.Generation {
			return s, ErrNotLoading
		}
		s.Loading = false
		s.Err = ev.Err
		return s, nil
	case Reset:
		next := New(ev.Page, s.Dedupe)
		next.Generation = s.Generation + 1
		return next, nil
	default:
		return s, errors.New("pagination: unknown event")
	}
}

// merge appends incoming to the accumulated posts without touching the
// previous backing array.
func merge(s State, incoming []posts.Summary) []posts.Summary {
	if s.Dedupe {
		seen := make(map[string]struct{}, len(s.Initial)+len(s.More))
		for _, p := range s.Initial {
			seen[p.UID] = struct{}{}
		}
		for _, p := range s.More {
			seen[p.UID] = struct{}{}
		}
		kept := make([]posts.Summary, 0, len(incoming))
		for _, p := range incoming {
			if _, dup := seen[p.UID]; dup {
				continue
			}
			seen[p.UID] = struct{}{}
			kept = append(kept, p)
		}
		incoming = kept
	}
	out := make([]posts.Summary, 0, len(s.More)+len(incoming))
	out = append(out, s.More...)
	return append(out, incoming...)
}
