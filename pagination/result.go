package pagination

import "github.com/eringen/spacetraveling/posts"

// Result is the outcome of one page fetch: either a page or the reason the
// fetch failed. Exactly one of Page or Err is meaningful.
type Result struct {
	Page posts.Page
	Err  error
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Event converts the result into the matching transition event for the load
// started at generation.
func (r Result) Event(generation uint64) Event {
	if r.Err != nil {
		return LoadFailed{Err: r.Err, Generation: generation}
	}
	return PageLoaded{Page: r.Page, Generation: generation}
}

// Success wraps a fetched page.
func Success(p posts.Page) Result { return Result{Page: p} }

// Failure wraps a fetch error.
func Failure(err error) Result { return Result{Err: err} }
