package spacetraveling

import (
	"context"
	"errors"
	"net/url"

	"github.com/eringen/spacetraveling/prismic"
)

var (
	// ErrInvalidPageSize is returned for a non-positive page size.
	ErrInvalidPageSize = errors.New("spacetraveling: page size must be positive")
	// ErrNoCursor is returned when a next page is requested without a cursor.
	ErrNoCursor = errors.New("spacetraveling: no next-page cursor")
	// ErrForeignCursor is returned for a cursor that does not point at the
	// configured content API.
	ErrForeignCursor = errors.New("spacetraveling: cursor does not belong to the content API")
	// ErrNoSnapshot is returned when no snapshot has been stored yet.
	ErrNoSnapshot = errors.New("spacetraveling: no snapshot stored")
	// ErrUnknownSession is returned for a missing or expired visitor session.
	ErrUnknownSession = errors.New("spacetraveling: unknown pagination session")
)

// ContentSource is the headless CMS the listing reads from.
// *prismic.Client implements it.
type ContentSource interface {
	Query(ctx context.Context, predicates []prismic.Predicate, opts prismic.QueryOptions) (*prismic.Response, error)
	FetchPage(ctx context.Context, rawURL string) (*prismic.Response, error)
	Endpoint() *url.URL
}
