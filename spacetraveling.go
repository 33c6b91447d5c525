// Package spacetraveling serves a paginated blog listing backed by a Prismic
// repository, built with Go, Echo, and templ.
//
// The first page of posts is cached, persisted to SQLite and revalidated in
// the background. Each visitor pages through the rest with a "load more"
// control whose state lives server-side, one pagination.State per visitor.
package spacetraveling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/views"
)

// ViewFuncs holds the templ components the handlers render. DefaultViews
// returns the embedded listing templates; any of them can be replaced.
type ViewFuncs struct {
	Home        func(l views.Listing) templ.Component
	MorePosts   func(l views.Listing) templ.Component
	NotFound    func(site views.SiteConfig) templ.Component
	ServerError func(site views.SiteConfig) templ.Component
}

// DefaultViews returns the built-in views.
func DefaultViews() ViewFuncs {
	return ViewFuncs{
		Home:        views.Home,
		MorePosts:   views.MorePosts,
		NotFound:    views.NotFound,
		ServerError: views.ServerError,
	}
}

// App wires together the content source, caches, per-visitor pagination,
// handlers and middleware.
type App struct {
	Config    SiteConfig
	Echo      *echo.Echo
	Store     *Store
	Cache     *PageCache
	Views     ViewFuncs
	Sessions  *Sessions
	Loader    *Loader
	Paginator *Paginator
	Metrics   *Metrics
	Logger    *slog.Logger

	source       ContentSource
	httpClient   *http.Client
	registry     *prometheus.Registry
	limiter      *RequestLimiter
	revalidator  *Revalidator
	customRoutes []func(*App)
	staticDir    string
	location     *time.Location
	ready        bool
}

// New creates an App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  DefaultViews(),
		Logger: slog.Default(),
	}
	a.Echo.HideBanner = true
	a.Echo.HidePort = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// init builds everything except the HTTP layer. It is shared by Setup and
// Build and runs once.
func (a *App) init(ctx context.Context) error {
	if a.ready {
		return nil
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}
	a.location = a.Config.Location()

	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.Metrics = NewMetrics(a.registry)

	src := a.source
	if src == nil {
		hc := a.httpClient
		if hc == nil {
			hc = &http.Client{Timeout: a.Config.RequestTimeout}
		}
		client, err := prismic.NewClient(a.Config.APIEndpoint,
			prismic.WithHTTPClient(hc),
			prismic.WithAccessToken(a.Config.AccessToken),
		)
		if err != nil {
			return fmt.Errorf("spacetraveling: content API: %w", err)
		}
		src = client
	}
	a.source = instrumentedSource{ContentSource: src, metrics: a.Metrics}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("spacetraveling: init store: %w", err)
	}
	a.Store = store

	a.Loader = NewLoader(a.source, a.Config.DocumentType, a.Config.PageSize, a.Config.Orderings)
	a.Paginator = NewPaginator(a.source)
	a.Cache = NewPageCache(a.Loader, a.Store, a.Config.DocumentType, a.Config.PageCacheTTL,
		a.Config.SnapshotRetention, a.Metrics, a.Logger)

	if err := a.Cache.Restore(ctx); err != nil && !errors.Is(err, ErrNoSnapshot) {
		a.Logger.Warn("restore snapshot", "error", err)
	}

	a.ready = true
	return nil
}

// Setup initializes the store, caches, middleware and routes without
// listening. Start calls it; tests call it directly and drive a.Echo.
func (a *App) Setup(ctx context.Context) error {
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("spacetraveling: SessionSecret is required")
	}
	if err := a.init(ctx); err != nil {
		return err
	}

	a.Sessions = NewSessions(a.Config.SessionTTL, a.Config.MaxSessions)
	a.limiter = NewRequestLimiter(a.Config.LoadMoreLimit, time.Minute)

	if a.Config.RevalidateInterval > 0 {
		r, err := NewRevalidator(a.Cache, a.Config.RevalidateInterval, a.Config.RequestTimeout, a.Logger)
		if err != nil {
			return err
		}
		a.revalidator = r
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start sets the app up and serves until ctx is cancelled, then shuts the
// server down gracefully.
func (a *App) Start(ctx context.Context) error {
	if err := a.Setup(ctx); err != nil {
		return err
	}
	if a.revalidator != nil {
		a.revalidator.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", a.Config.Addr, "url", a.Config.URL)
		if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("spacetraveling: shutdown: %w", err)
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	a.mountAssets()
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", a.handleMetrics())

	e.GET("/", a.handleHome)
	e.POST("/posts/more/", a.handleLoadMore)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/sitemap.xml", a.handleSitemap)

	e.GET("/api/posts/", a.handleAPIPosts)
	e.GET("/api/posts/next/", a.handleAPINext)
}

// Close stops background work and releases the store.
func (a *App) Close() error {
	var errs []error
	if a.revalidator != nil {
		errs = append(errs, a.revalidator.Stop())
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
