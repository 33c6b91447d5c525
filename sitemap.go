package spacetraveling

import (
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/spacetraveling/posts"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func writeSitemap(w io.Writer, base string, list []posts.Summary) error {
	urls := []sitemapURL{
		{Loc: BuildURL(base)},
	}
	for _, p := range list {
		u := sitemapURL{Loc: AbsoluteURL(base, p.Path())}
		if p.FirstPublicationDate != nil {
			u.LastMod = p.FirstPublicationDate.UTC().Format(time.DateOnly)
		}
		urls = append(urls, u)
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(sitemap)
}

func (a *App) renderSitemap(c echo.Context, list []posts.Summary) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	return writeSitemap(c.Response(), a.Config.URL, list)
}
