package spacetraveling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/spacetraveling/posts"
)

func TestHomeRendersInitialPage(t *testing.T) {
	src := newFakeSource(response(pageURL(2),
		doc("como-utilizar-hooks", "Como utilizar Hooks"),
		doc("criando-um-app-cra-do-zero", "Criando um app CRA do zero"),
	))
	app := newTestApp(t, testConfig(t), src)

	rec := newBrowser(t, app).get("/", false)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, []string{"como-utilizar-hooks", "criando-um-app-cra-do-zero"}, postUIDs(body))
	assert.Contains(t, body, "Como utilizar Hooks")
	assert.Contains(t, body, "Sobre Como utilizar Hooks")
	assert.Contains(t, body, "Joseph Oliveira")
	assert.Contains(t, body, `<time datetime="2021-03-25T19:25:28Z">25 mar 2021</time>`)
	assert.Contains(t, body, "Carregar mais posts")
	assert.True(t, hasControl(body))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Result().Cookies(), "expected a session cookie")
	assert.Contains(t, body, `method="post"`)
	assert.Contains(t, body, `name="_csrf"`)
}

func TestHomeWithoutNextPageHasNoControl(t *testing.T) {
	src := newFakeSource(response("", doc("a", "A")))
	app := newTestApp(t, testConfig(t), src)

	body := newBrowser(t, app).get("/", false).Body.String()

	assert.Equal(t, []string{"a"}, postUIDs(body))
	assert.False(t, hasControl(body))
	assert.NotContains(t, body, "Carregar mais posts")
}

func TestHomeEmptyResults(t *testing.T) {
	app := newTestApp(t, testConfig(t), newFakeSource(response("")))

	rec := newBrowser(t, app).get("/", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, postUIDs(rec.Body.String()))
	assert.False(t, hasControl(rec.Body.String()))
}

func TestLoadMoreTwoPageScenario(t *testing.T) {
	src := newFakeSource(response(pageURL(2), doc("a", "A")))
	src.pages[pageURL(2)] = response("", doc("b", "B"))
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)

	home := b.get("/", false).Body.String()
	assert.Equal(t, []string{"a"}, postUIDs(home))
	assert.True(t, hasControl(home))

	rec := b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	fragment := rec.Body.String()
	assert.Equal(t, []string{"b"}, postUIDs(fragment))
	assert.False(t, hasControl(fragment))
	assert.NotContains(t, fragment, "<html")
}

func TestLoadMoreAccumulatesPagesInOrder(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(4))
	b := newBrowser(t, app)
	b.get("/", false)

	var body string
	for i := 0; i < 3; i++ {
		rec := b.loadMore(false)
		require.Equal(t, http.StatusOK, rec.Code)
		body = rec.Body.String()
		if i < 2 {
			assert.True(t, hasControl(body), "control should remain after page %d", i+2)
		}
	}

	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, postUIDs(body))
	assert.False(t, hasControl(body))
}

func TestLoadMoreAfterLastPage(t *testing.T) {
	src := newFakeSource(response(pageURL(2), doc("a", "A")))
	src.pages[pageURL(2)] = response("", doc("b", "B"))
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)
	b.get("/", false)
	b.loadMore(true)

	rec := b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, strings.TrimSpace(rec.Body.String()))

	rec = b.loadMore(false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b"}, postUIDs(rec.Body.String()))
	assert.Len(t, src.fetches, 1)
}

func TestLoadMoreFailureOffersRetry(t *testing.T) {
	src := newFakeSource(response(pageURL(2), doc("a", "A")))
	src.pages[pageURL(2)] = response("", doc("b", "B"))
	src.failures[pageURL(2)] = 1
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)
	b.get("/", false)

	rec := b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	fragment := rec.Body.String()
	assert.Empty(t, postUIDs(fragment))
	assert.Contains(t, fragment, `role="alert"`)
	assert.Contains(t, fragment, "Tentar novamente")
	assert.True(t, hasControl(fragment))

	rec = b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b"}, postUIDs(rec.Body.String()))

	full := b.loadMore(false).Body.String()
	assert.Equal(t, []string{"a", "b"}, postUIDs(full))
	assert.Equal(t, []string{pageURL(2), pageURL(2)}, src.fetches)
}

func TestLoadMoreWithoutSessionRedirectsHome(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(2))
	b := newBrowser(t, app)
	b.get("/", false)
	delete(b.cookies, sessionName)

	rec := b.loadMore(true)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLoadMoreRequiresPostWithToken(t *testing.T) {
	src := chainedSource(2)
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)
	home := b.get("/", false).Body.String()
	require.Contains(t, home, `name="_csrf" value="`+b.cookies["_csrf"].Value+`"`)

	assert.Equal(t, http.StatusMethodNotAllowed, b.get("/posts/more/", false).Code)

	noToken := b.prepare(httptest.NewRequest(http.MethodPost, "/posts/more/", nil), true)
	assert.Equal(t, http.StatusForbidden, b.do(noToken).Code)

	forged := b.prepare(httptest.NewRequest(http.MethodPost, "/posts/more/", strings.NewReader("_csrf=forged")), true)
	forged.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusForbidden, b.do(forged).Code)
	assert.Empty(t, src.fetches)

	rec := b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p2"}, postUIDs(rec.Body.String()))
}

func TestLoadMoreFollowsRelativeNextPage(t *testing.T) {
	src := newFakeSource(response("/page2", doc("a", "A")))
	src.pages["https://"+testHost+"/page2"] = response("", doc("b", "B"))
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)

	home := b.get("/", false).Body.String()
	assert.Equal(t, []string{"a"}, postUIDs(home))
	assert.True(t, hasControl(home))

	rec := b.loadMore(true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"b"}, postUIDs(rec.Body.String()))
	assert.False(t, hasControl(rec.Body.String()))

	full := b.loadMore(false).Body.String()
	assert.Equal(t, []string{"a", "b"}, postUIDs(full))
	assert.False(t, hasControl(full))
}

func TestReloadDuringLoadDiscardsLateResult(t *testing.T) {
	src := chainedSource(3)
	src.started = make(chan struct{}, 1)
	src.release = make(chan struct{})
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)
	b.get("/", false)

	req := b.loadMoreRequest(true)
	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Echo.ServeHTTP(first, req)
	}()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	assert.Equal(t, []string{"p1"}, postUIDs(b.get("/", false).Body.String()))
	close(src.release)
	<-done
	assert.Equal(t, http.StatusConflict, first.Code)

	src.started = nil
	rec := b.loadMore(false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"p1", "p2"}, postUIDs(rec.Body.String()),
		"the superseded page must not land in the new listing")
}

func TestSessionCapEvictsOldestVisitor(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxSessions = 1
	app := newTestApp(t, cfg, chainedSource(3))
	alice := newBrowser(t, app)
	bob := newBrowser(t, app)
	alice.get("/", false)
	bob.get("/", false)

	assert.Equal(t, 1, app.Sessions.Len())
	assert.Equal(t, http.StatusSeeOther, alice.loadMore(true).Code)
	assert.Equal(t, []string{"p2"}, postUIDs(bob.loadMore(true).Body.String()))
}

func TestLoadMoreRejectsRequestWhileLoading(t *testing.T) {
	src := chainedSource(3)
	src.started = make(chan struct{})
	src.release = make(chan struct{})
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)
	b.get("/", false)

	var wg sync.WaitGroup
	req := b.loadMoreRequest(true)
	first := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Echo.ServeHTTP(first, req)
	}()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	second := b.loadMore(true)
	assert.Equal(t, http.StatusConflict, second.Code)

	close(src.release)
	wg.Wait()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, []string{"p2"}, postUIDs(first.Body.String()))
	assert.Len(t, src.fetches, 1)
}

func TestLoadMoreIsRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.LoadMoreLimit = 1
	app := newTestApp(t, cfg, chainedSource(5))
	b := newBrowser(t, app)
	b.get("/", false)

	assert.Equal(t, http.StatusOK, b.loadMore(true).Code)
	assert.Equal(t, http.StatusTooManyRequests, b.loadMore(true).Code)
}

func TestVisitorsPaginateIndependently(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(3))
	alice := newBrowser(t, app)
	bob := newBrowser(t, app)
	alice.get("/", false)
	bob.get("/", false)

	alice.loadMore(true)
	alice.loadMore(true)

	assert.Equal(t, []string{"p2"}, postUIDs(bob.loadMore(true).Body.String()))
}

func TestReloadingHomeStartsOver(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(3))
	b := newBrowser(t, app)
	b.get("/", false)
	b.loadMore(true)

	assert.Equal(t, []string{"p1"}, postUIDs(b.get("/", false).Body.String()))
	assert.Equal(t, []string{"p2"}, postUIDs(b.loadMore(true).Body.String()))
}

func TestDedupeDropsRepeatedPosts(t *testing.T) {
	src := newFakeSource(response(pageURL(2), doc("a", "A")))
	src.pages[pageURL(2)] = response("", doc("a", "A"), doc("b", "B"))
	cfg := testConfig(t)
	cfg.DedupeUIDs = true
	app := newTestApp(t, cfg, src)
	b := newBrowser(t, app)
	b.get("/", false)

	assert.Equal(t, []string{"b"}, postUIDs(b.loadMore(true).Body.String()))
}

func TestAPIPostsReturnsContentShape(t *testing.T) {
	src := newFakeSource(response(pageURL(2), doc("a", "A")))
	app := newTestApp(t, testConfig(t), src)

	rec := newBrowser(t, app).get("/api/posts/", false)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, pageURL(2), payload["next_page"])
	results := payload["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "a", first["uid"])
	assert.Equal(t, "2021-03-25T19:25:28+0000", first["first_publication_date"])
	assert.Equal(t, map[string]any{"title": "A", "subtitle": "Sobre A", "author": "Joseph Oliveira"}, first["data"])
}

func TestAPINextFollowsCursor(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(2))

	rec := newBrowser(t, app).get("/api/posts/next/?cursor="+url.QueryEscape(pageURL(2)), false)

	require.Equal(t, http.StatusOK, rec.Code)
	var page posts.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.True(t, page.Cursor.Absent())
	require.Len(t, page.Results, 1)
	assert.Equal(t, "p2", page.Results[0].UID)
}

func TestAPINextErrors(t *testing.T) {
	src := chainedSource(2)
	src.failures[pageURL(2)] = 1
	app := newTestApp(t, testConfig(t), src)
	b := newBrowser(t, app)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing cursor", "/api/posts/next/", http.StatusBadRequest},
		{"foreign host", "/api/posts/next/?cursor=" + url.QueryEscape("https://evil.example.com/page2"), http.StatusBadRequest},
		{"not a url", "/api/posts/next/?cursor=" + url.QueryEscape("file:///etc/passwd"), http.StatusBadRequest},
		{"upstream failure", "/api/posts/next/?cursor=" + url.QueryEscape(pageURL(2)), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := b.get(tt.path, false)
			assert.Equal(t, tt.status, rec.Code)
			var payload apiError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload.Error)
		})
	}
	assert.Equal(t, []string{pageURL(2)}, src.fetches)
}

func TestHomeServesSnapshotWhenContentAPIFails(t *testing.T) {
	cfg := testConfig(t)
	healthy := newFakeSource(response("", doc("a", "A")))
	first := New(cfg, WithContentSource(healthy), WithLogger(discardLogger()))
	require.NoError(t, first.Setup(context.Background()))
	newBrowser(t, first).get("/", false)
	require.NoError(t, first.Close())

	broken := newFakeSource(nil)
	broken.setQueryErr(errUpstream)
	app := newTestApp(t, cfg, broken)

	rec := newBrowser(t, app).get("/", false)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, postUIDs(rec.Body.String()))
	assert.Equal(t, 1, broken.queryCount())
}

func TestHomeRendersServerErrorWithoutSnapshot(t *testing.T) {
	src := newFakeSource(nil)
	src.setQueryErr(errUpstream)
	app := newTestApp(t, testConfig(t), src)

	rec := newBrowser(t, app).get("/", false)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Algo deu errado")
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(1))

	rec := newBrowser(t, app).get("/nope/", false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Página não encontrada")
}

func TestOperationalEndpoints(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(2))
	b := newBrowser(t, app)
	b.get("/", false)
	b.loadMore(true)

	health := b.get("/healthz", false)
	assert.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	robots := b.get("/robots.txt", false)
	assert.Contains(t, robots.Body.String(), "Sitemap: https://blog.example.com/sitemap.xml")

	metrics := b.get("/metrics", false).Body.String()
	assert.Contains(t, metrics, `spacetraveling_load_more_total{result="success"} 1`)
	assert.Contains(t, metrics, `spacetraveling_content_requests_total{operation="fetch_page",result="success"} 1`)

	css := b.get("/public/styles.css", false)
	assert.Equal(t, http.StatusOK, css.Code)
	assert.Contains(t, css.Body.String(), ".button-load-more")
}

func TestSitemapListsPosts(t *testing.T) {
	app := newTestApp(t, testConfig(t), chainedSource(1))

	body := newBrowser(t, app).get("/sitemap.xml", false).Body.String()

	assert.Contains(t, body, "<loc>https://blog.example.com/</loc>")
	assert.Contains(t, body, "<loc>https://blog.example.com/post/p1</loc>")
	assert.Contains(t, body, "<lastmod>2021-03-25</lastmod>")
}

// TestPrismicEndToEnd drives the app against a fake Prismic HTTP API
// instead of an in-memory source.
func TestPrismicEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2":
			fmt.Fprint(w, `{"refs":[{"id":"master","ref":"master-ref","label":"Master","isMasterRef":true}]}`)
		case "/api/v2/documents/search":
			if r.URL.Query().Get("page") == "2" {
				fmt.Fprint(w, `{"page":2,"next_page":null,"results":[{"uid":"b","first_publication_date":"2021-04-01T10:00:00+0000","data":{"title":"B","subtitle":"Sub B","author":"Ana"}}]}`)
				return
			}
			assert.Equal(t, "master-ref", r.URL.Query().Get("ref"))
			assert.Equal(t, `[[at(document.type,"posts")]]`, r.URL.Query().Get("q"))
			assert.Equal(t, "1", r.URL.Query().Get("pageSize"))
			next := srv.URL + "/api/v2/documents/search?ref=master-ref&page=2&pageSize=1"
			fmt.Fprintf(w, `{"page":1,"next_page":%q,"results":[{"uid":"a","first_publication_date":"2021-03-25T19:25:28+0000","data":{"title":[{"type":"heading1","text":"A","spans":[]}],"subtitle":"Sub A","author":"Joseph"}}]}`, next)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.APIEndpoint = srv.URL + "/api/v2"
	app := New(cfg, WithLogger(discardLogger()))
	require.NoError(t, app.Setup(context.Background()))
	defer app.Close()
	b := newBrowser(t, app)

	home := b.get("/", false).Body.String()
	assert.Equal(t, []string{"a"}, postUIDs(home))
	assert.True(t, hasControl(home))

	more := b.loadMore(true).Body.String()
	assert.Equal(t, []string{"b"}, postUIDs(more))
	assert.Contains(t, more, "01 abr 2021")
	assert.False(t, hasControl(more))
}
