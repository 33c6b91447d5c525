package spacetraveling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eringen/spacetraveling/posts"
)

// PageLoader produces the initial page. *Loader implements it.
type PageLoader interface {
	LoadInitialPage(ctx context.Context) (posts.Page, error)
}

// PageCache is an in-memory cache of the initial page with TTL. Fresh loads
// are persisted to the Store; when the content API fails, the last good page
// (in memory, then in the Store) is served instead.
type PageCache struct {
	mu           sync.RWMutex
	page         posts.Page
	loaded       bool
	fetched      time.Time
	ttl          time.Duration
	loader       PageLoader
	store        *Store
	documentType string
	retention    int
	metrics      *Metrics
	logger       *slog.Logger
}

// NewPageCache creates a PageCache. store and metrics may be nil.
func NewPageCache(loader PageLoader, store *Store, documentType string, ttl time.Duration, retention int, metrics *Metrics, logger *slog.Logger) *PageCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageCache{
		loader:       loader,
		store:        store,
		documentType: documentType,
		ttl:          ttl,
		retention:    retention,
		metrics:      metrics,
		logger:       logger,
	}
}

func (c *PageCache) valid() bool {
	return c.loaded && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PageCache) Invalidate() {
	c.mu.Lock()
	c.fetched = time.Time{}
	c.mu.Unlock()
}

// Initial returns the cached initial page, reloading it when stale.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *PageCache) Initial(ctx context.Context) (posts.Page, error) {
	c.mu.RLock()
	if c.valid() {
		page := c.page
		c.mu.RUnlock()
		return page, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.page, nil
	}
	if err := c.load(ctx); err != nil {
		return posts.Page{}, err
	}
	return c.page, nil
}

// Refresh reloads the page regardless of its age.
func (c *PageCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// Restore seeds the cache from the newest stored snapshot without querying
// the content API. The seeded page counts as stale, so the first read still
// tries a fresh load.
func (c *PageCache) Restore(ctx context.Context) error {
	if c.store == nil {
		return ErrNoSnapshot
	}
	snap, err := c.store.LatestSnapshot(ctx, c.documentType)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.page = snap.Page
	c.loaded = true
	c.fetched = time.Time{}
	c.mu.Unlock()
	return nil
}

// load must be called with c.mu held for writing.
func (c *PageCache) load(ctx context.Context) error {
	page, err := c.loader.LoadInitialPage(ctx)
	if err == nil {
		c.page = page
		c.loaded = true
		c.fetched = time.Now()
		c.persist(ctx, page)
		return nil
	}

	if c.loaded {
		c.logger.Warn("serving stale initial page", "error", err)
		c.fetched = time.Now()
		c.fallback()
		return nil
	}
	if c.store != nil {
		snap, serr := c.store.LatestSnapshot(ctx, c.documentType)
		if serr == nil {
			c.logger.Warn("serving stored snapshot", "snapshot", snap.ID, "created_at", snap.CreatedAt, "error", err)
			c.page = snap.Page
			c.loaded = true
			c.fetched = time.Now()
			c.fallback()
			return nil
		}
		if !errors.Is(serr, ErrNoSnapshot) {
			c.logger.Error("read snapshot", "error", serr)
		}
	}
	return err
}

func (c *PageCache) persist(ctx context.Context, page posts.Page) {
	if c.store == nil {
		return
	}
	if _, err := c.store.SaveSnapshot(ctx, c.documentType, page); err != nil {
		c.logger.Error("save snapshot", "error", err)
		return
	}
	if err := c.store.Prune(ctx, c.documentType, c.retention); err != nil {
		c.logger.Error("prune snapshots", "error", err)
	}
}

func (c *PageCache) fallback() {
	if c.metrics != nil {
		c.metrics.CacheFallback()
	}
}
