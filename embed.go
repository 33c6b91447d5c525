package spacetraveling

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

// EmbeddedAssets contains the static assets shipped with the binary:
// logo.svg and styles.css.
//
//go:embed embedded/*
var EmbeddedAssets embed.FS

// assetFS returns the embedded assets rooted at the asset directory.
func assetFS() fs.FS {
	sub, err := fs.Sub(EmbeddedAssets, "embedded")
	if err != nil {
		panic(err)
	}
	return sub
}

// mountAssets serves /public from the static dir when one is configured,
// otherwise from the embedded assets.
func (a *App) mountAssets() {
	if a.staticDir != "" {
		a.Echo.Static("/public", a.staticDir)
		return
	}
	handler := http.StripPrefix("/public/", http.FileServer(http.FS(assetFS())))
	a.Echo.GET("/public/*", echo.WrapHandler(handler))
}
