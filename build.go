package spacetraveling

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Build queries the initial page once, stores it as a snapshot and writes a
// static copy of the site into outDir: index.html, feed.xml, sitemap.xml,
// robots.txt and the assets under public/. A failed query fails the build;
// no snapshot fallback applies here.
//
// The load-more control in the static index still posts to /posts/more/,
// which only a running server answers, and carries no CSRF token; a visitor
// must load / from the server before loading more.
func (a *App) Build(ctx context.Context, outDir string) error {
	if err := a.init(ctx); err != nil {
		return err
	}

	page, err := a.Loader.LoadInitialPage(ctx)
	if err != nil {
		return err
	}
	snap, err := a.Store.SaveSnapshot(ctx, a.Config.DocumentType, page)
	if err != nil {
		return fmt.Errorf("spacetraveling: save snapshot: %w", err)
	}
	if err := a.Store.Prune(ctx, a.Config.DocumentType, a.Config.SnapshotRetention); err != nil {
		a.Logger.Warn("prune snapshots", "error", err)
	}
	a.Logger.Info("initial page loaded", "posts", len(page.Results), "has_more", page.HasMore(), "snapshot", snap.ID)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("spacetraveling: create output dir: %w", err)
	}

	if err := RenderFile(ctx, filepath.Join(outDir, "index.html"),
		a.Views.Home(a.listing(page.Results, page.HasMore(), ""))); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "feed.xml"), func(f *os.File) error {
		return writeRSS(f, a.Config, page.Results)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(outDir, "sitemap.xml"), func(f *os.File) error {
		return writeSitemap(f, a.Config.URL, page.Results)
	}); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "robots.txt"), []byte(robotsTxt(a.Config)), 0o644); err != nil {
		return err
	}
	return copyAssets(filepath.Join(outDir, "public"))
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func copyAssets(dst string) error {
	assets := assetFS()
	return fs.WalkDir(assets, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := fs.ReadFile(assets, path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
