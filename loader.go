package spacetraveling

import (
	"context"
	"fmt"
	"net/url"

	"github.com/eringen/spacetraveling/pagination"
	"github.com/eringen/spacetraveling/posts"
	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/richtext"
)

// Loader performs the initial query for the listing: one page of documents
// of a single custom type.
type Loader struct {
	source       ContentSource
	documentType string
	pageSize     int
	orderings    string
}

// NewLoader creates a Loader for documentType with the given page size.
func NewLoader(src ContentSource, documentType string, pageSize int, orderings string) *Loader {
	return &Loader{
		source:       src,
		documentType: documentType,
		pageSize:     pageSize,
		orderings:    orderings,
	}
}

// LoadInitialPage queries the first page. Results keep the API's order and
// the cursor is whatever next_page the API returned. Errors from the content
// source are returned wrapped; nothing is retried here.
func (l *Loader) LoadInitialPage(ctx context.Context) (posts.Page, error) {
	if l.pageSize <= 0 {
		return posts.Page{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, l.pageSize)
	}
	resp, err := l.source.Query(ctx,
		[]prismic.Predicate{prismic.DocumentType(l.documentType)},
		prismic.QueryOptions{PageSize: l.pageSize, Orderings: l.orderings},
	)
	if err != nil {
		return posts.Page{}, fmt.Errorf("spacetraveling: query %s: %w", l.documentType, err)
	}
	return NormalizeResponse(resp), nil
}

// NormalizeResponse maps a raw response to a posts.Page.
func NormalizeResponse(resp *prismic.Response) posts.Page {
	if resp == nil {
		return posts.Page{}
	}
	page := posts.Page{
		Cursor:  posts.Cursor(resp.Next()),
		Results: make([]posts.Summary, 0, len(resp.Results)),
	}
	for _, doc := range resp.Results {
		page.Results = append(page.Results, NormalizeDocument(doc))
	}
	return page
}

// NormalizeDocument keeps uid, first publication date, title, subtitle and
// author. Every other field is dropped.
func NormalizeDocument(doc prismic.Document) posts.Summary {
	s := posts.Summary{
		Title:    richtext.AsText(doc.Field("title"), " "),
		Subtitle: richtext.AsText(doc.Field("subtitle"), " "),
		Author:   richtext.AsText(doc.Field("author"), " "),
	}
	if doc.UID != nil {
		s.UID = *doc.UID
	}
	if doc.FirstPublicationDate != nil {
		if t, ok := prismic.ParseTime(*doc.FirstPublicationDate); ok {
			s.FirstPublicationDate = &t
		}
	}
	return s
}

// Paginator fetches the pages after the initial one by following cursors.
type Paginator struct {
	source ContentSource
}

// NewPaginator creates a Paginator over src.
func NewPaginator(src ContentSource) *Paginator {
	return &Paginator{source: src}
}

// Next fetches the page a cursor points to. Failures are reported in the
// Result, never panicked or dropped.
func (p *Paginator) Next(ctx context.Context, cursor posts.Cursor) pagination.Result {
	if cursor.Absent() {
		return pagination.Failure(ErrNoCursor)
	}
	target, err := p.ResolveCursor(cursor)
	if err != nil {
		return pagination.Failure(err)
	}
	resp, err := p.source.FetchPage(ctx, target)
	if err != nil {
		return pagination.Failure(fmt.Errorf("spacetraveling: fetch next page: %w", err))
	}
	return pagination.Success(NormalizeResponse(resp))
}

// ResolveCursor returns the absolute URL a cursor points to. Relative cursors
// such as "/page2" resolve against the content API endpoint. The result must
// be an http(s) URL on the endpoint's host; cursors travel through clients,
// so anything else is refused before it is fetched.
func (p *Paginator) ResolveCursor(cursor posts.Cursor) (string, error) {
	ref, err := url.Parse(string(cursor))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrForeignCursor, err)
	}
	base := p.source.Endpoint()
	u := base.ResolveReference(ref)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host != base.Host {
		return "", ErrForeignCursor
	}
	return u.String(), nil
}
