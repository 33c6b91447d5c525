package spacetraveling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/prismic"
)

const (
	testHost     = "spacetraveling.cdn.prismic.io"
	testEndpoint = "https://" + testHost + "/api/v2"
)

func pageURL(n int) string {
	return testEndpoint + "/documents/search?page=" + strconv.Itoa(n) + "&pageSize=1"
}

var errUpstream = errors.New("upstream unavailable")

// fakeSource is an in-memory content API. Pages are keyed by their URL.
type fakeSource struct {
	mu       sync.Mutex
	first    *prismic.Response
	pages    map[string]*prismic.Response
	queryErr error
	failures map[string]int // remaining failures per URL
	queries  int
	fetches  []string

	// When set, FetchPage signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func newFakeSource(first *prismic.Response) *fakeSource {
	return &fakeSource{
		first:    first,
		pages:    make(map[string]*prismic.Response),
		failures: make(map[string]int),
	}
}

func (f *fakeSource) Query(ctx context.Context, predicates []prismic.Predicate, opts prismic.QueryOptions) (*prismic.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.first, nil
}

func (f *fakeSource) FetchPage(ctx context.Context, rawURL string) (*prismic.Response, error) {
	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, rawURL)
	if f.failures[rawURL] > 0 {
		f.failures[rawURL]--
		return nil, errUpstream
	}
	resp, ok := f.pages[rawURL]
	if !ok {
		return nil, &prismic.APIError{StatusCode: http.StatusNotFound, Message: "no such page"}
	}
	return resp, nil
}

func (f *fakeSource) Endpoint() *url.URL {
	u, _ := url.Parse(testEndpoint)
	return u
}

func (f *fakeSource) setQueryErr(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

func (f *fakeSource) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func doc(uid, title string) prismic.Document {
	date := "2021-03-25T19:25:28+0000"
	id := uid
	return prismic.Document{
		ID:                   "id-" + uid,
		UID:                  &id,
		Type:                 "posts",
		FirstPublicationDate: &date,
		Data: map[string]json.RawMessage{
			"title":    json.RawMessage(strconv.Quote(title)),
			"subtitle": json.RawMessage(strconv.Quote("Sobre " + title)),
			"author":   json.RawMessage(`"Joseph Oliveira"`),
		},
	}
}

func response(next string, docs ...prismic.Document) *prismic.Response {
	r := &prismic.Response{Page: 1, ResultsPerPage: len(docs), Results: docs}
	if next != "" {
		r.NextPage = &next
	}
	return r
}

// chainedSource builds a source whose pages hold one post each, uids p1..pn.
func chainedSource(n int) *fakeSource {
	next := func(i int) string {
		if i >= n {
			return ""
		}
		return pageURL(i + 1)
	}
	f := newFakeSource(response(next(1), doc("p1", "Post 1")))
	for i := 2; i <= n; i++ {
		uid := "p" + strconv.Itoa(i)
		f.pages[pageURL(i)] = response(next(i), doc(uid, "Post "+strconv.Itoa(i)))
	}
	return f
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) SiteConfig {
	t.Helper()
	return SiteConfig{
		Name:               "spacetraveling",
		URL:                "https://blog.example.com",
		APIEndpoint:        testEndpoint,
		SessionSecret:      "test-secret",
		DatabasePath:       filepath.Join(t.TempDir(), "data", "test.db"),
		RevalidateInterval: -1,
	}
}

func newTestApp(t *testing.T, cfg SiteConfig, src ContentSource, opts ...Option) *App {
	t.Helper()
	opts = append([]Option{WithContentSource(src), WithLogger(discardLogger())}, opts...)
	app := New(cfg, opts...)
	require.NoError(t, app.Setup(context.Background()))
	t.Cleanup(func() { app.Close() })
	return app
}

// browser replays cookies across requests like a real client and submits the
// load-more control with the CSRF token from its cookie.
type browser struct {
	t       *testing.T
	app     *App
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, app *App) *browser {
	return &browser{t: t, app: app, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) get(path string, htmx bool) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(b.prepare(httptest.NewRequest(http.MethodGet, path, nil), htmx))
}

func (b *browser) loadMore(htmx bool) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(b.loadMoreRequest(htmx))
}

// loadMoreRequest builds the form submit of the load-more control.
func (b *browser) loadMoreRequest(htmx bool) *http.Request {
	form := url.Values{}
	if c, ok := b.cookies["_csrf"]; ok {
		form.Set("_csrf", c.Value)
	}
	req := httptest.NewRequest(http.MethodPost, loadMorePath, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return b.prepare(req, htmx)
}

func (b *browser) prepare(req *http.Request, htmx bool) *http.Request {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	return req
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	b.app.Echo.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

// postUIDs lists the /post/{uid} links in body, in order.
func postUIDs(body string) []string {
	var out []string
	const marker = `href="/post/`
	for {
		i := strings.Index(body, marker)
		if i < 0 {
			return out
		}
		body = body[i+len(marker):]
		end := strings.IndexByte(body, '"')
		out = append(out, body[:end])
		body = body[end:]
	}
}

func hasControl(body string) bool {
	return strings.Contains(body, `id="load-more"`)
}
