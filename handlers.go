package spacetraveling

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/spacetraveling/pagination"
	"github.com/eringen/spacetraveling/posts"
	"github.com/eringen/spacetraveling/views"
)

const loadMorePath = "/posts/more/"

// loadErrorMessage is shown inline above the retry control.
const loadErrorMessage = "Não foi possível carregar mais posts."

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func (a *App) handleHome(c echo.Context) error {
	page, err := a.Cache.Initial(c.Request().Context())
	if err != nil {
		return err
	}
	id, err := a.ensureVisitor(c)
	if err != nil {
		return err
	}
	st := a.Sessions.Reset(id, page, a.Config.DedupeUIDs)
	return a.renderListing(c, a.Views.Home, a.listing(st.Posts(), st.HasMore(), ""))
}

// handleLoadMore performs one load-more step for the visitor. htmx requests
// get the new entries plus the next control; plain form submits get the
// whole page.
func (a *App) handleLoadMore(c echo.Context) error {
	if !a.limiter.Allow(c.RealIP()) {
		a.Metrics.LoadMore("rate_limited")
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
	}
	id, ok := visitorID(c)
	if !ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	st, err := a.Sessions.Apply(id, pagination.LoadRequested{})
	switch {
	case errors.Is(err, ErrUnknownSession):
		return c.Redirect(http.StatusSeeOther, "/")
	case errors.Is(err, pagination.ErrLoadInFlight):
		a.Metrics.LoadMore("in_flight")
		return echo.NewHTTPError(http.StatusConflict, "a page is already loading")
	case errors.Is(err, pagination.ErrNoMorePages):
		a.Metrics.LoadMore("exhausted")
		if isHTMX(c) {
			return a.renderListing(c, a.Views.MorePosts, a.listing(nil, false, ""))
		}
		return a.renderListing(c, a.Views.Home, a.listing(st.Posts(), false, ""))
	case err != nil:
		return err
	}

	shown := len(st.More)
	cursor := st.Cursor
	res := a.Paginator.Next(c.Request().Context(), cursor)
	next, err := a.Sessions.Apply(id, res.Event(st.Generation))
	if err != nil {
		// The listing was reset or expired while the page was loading.
		a.Logger.Info("load-more result discarded", "cursor", cursor, "error", err)
		return echo.NewHTTPError(http.StatusConflict, "the listing changed while loading")
	}

	if !res.OK() {
		a.Metrics.LoadMore("failure")
		a.Logger.Warn("load more posts", "cursor", cursor, "error", res.Err)
		if isHTMX(c) {
			return a.renderListing(c, a.Views.MorePosts, a.listing(nil, next.HasMore(), loadErrorMessage))
		}
		return a.renderListing(c, a.Views.Home, a.listing(next.Posts(), next.HasMore(), loadErrorMessage))
	}

	a.Metrics.LoadMore("success")
	if isHTMX(c) {
		return a.renderListing(c, a.Views.MorePosts, a.listing(next.More[shown:], next.HasMore(), ""))
	}
	return a.renderListing(c, a.Views.Home, a.listing(next.Posts(), next.HasMore(), ""))
}

type apiError struct {
	Error string `json:"error"`
}

func (a *App) handleAPIPosts(c echo.Context) error {
	page, err := a.Cache.Initial(c.Request().Context())
	if err != nil {
		a.Logger.Error("api initial page", "error", err)
		return c.JSON(http.StatusBadGateway, apiError{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, page)
}

func (a *App) handleAPINext(c echo.Context) error {
	if !a.limiter.Allow(c.RealIP()) {
		return c.JSON(http.StatusTooManyRequests, apiError{Error: "too many requests"})
	}
	cursor := posts.Cursor(c.QueryParam("cursor"))
	res := a.Paginator.Next(c.Request().Context(), cursor)
	switch {
	case errors.Is(res.Err, ErrNoCursor), errors.Is(res.Err, ErrForeignCursor):
		return c.JSON(http.StatusBadRequest, apiError{Error: res.Err.Error()})
	case res.Err != nil:
		a.Logger.Warn("api next page", "cursor", cursor, "error", res.Err)
		return c.JSON(http.StatusBadGateway, apiError{Error: res.Err.Error()})
	}
	return c.JSON(http.StatusOK, res.Page)
}

func (a *App) handleFeed(c echo.Context) error {
	page, err := a.Cache.Initial(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderRSS(c, page.Results)
}

func (a *App) handleSitemap(c echo.Context) error {
	page, err := a.Cache.Initial(c.Request().Context())
	if err != nil {
		return err
	}
	return a.renderSitemap(c, page.Results)
}

func (a *App) handleRobots(c echo.Context) error {
	return c.String(http.StatusOK, robotsTxt(a.Config))
}

func robotsTxt(cfg SiteConfig) string {
	var b strings.Builder
	b.WriteString("User-agent: *\nAllow: /\n")
	fmt.Fprintf(&b, "Sitemap: %s/sitemap.xml\n", cfg.URL)
	return b.String()
}

func (a *App) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleMetrics() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
}

func (a *App) site() views.SiteConfig {
	return views.SiteConfig{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
		Lang:        a.Config.Locale,
	}
}

func (a *App) listing(list []posts.Summary, hasMore bool, errMsg string) views.Listing {
	return views.Listing{
		Site: a.site(),
		Meta: views.PageMeta{
			Title:       "Home | " + a.Config.Name,
			Description: a.Config.Description,
			URL:         BuildURL(a.Config.URL),
			OGType:      "website",
		},
		Entries: toEntries(list, a.Config.Locale, a.location),
		HasMore: hasMore,
		MoreURL: loadMorePath,
		Error:   errMsg,
	}
}

// renderListing renders a listing view carrying the request's CSRF token, so
// the load-more control it contains can be submitted.
func (a *App) renderListing(c echo.Context, view func(views.Listing) templ.Component, l views.Listing) error {
	l.CSRF, _ = c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return Render(c, view(l))
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound(a.site()))
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code >= 500 {
		a.Logger.Error("server error", "method", c.Request().Method, "uri", c.Request().RequestURI, "error", err)
		_ = RenderStatus(c, code, a.Views.ServerError(a.site()))
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
