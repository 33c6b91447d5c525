package spacetraveling

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/eringen/spacetraveling/posts"
	"github.com/eringen/spacetraveling/views"
)

// BuildURL joins a base URL with path segments, ensuring a trailing slash.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join("/", u.Path, path.Join(pathSegments...))
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String()
}

// AbsoluteURL resolves a site-relative path such as /post/{uid} against base.
func AbsoluteURL(base, sitePath string) string {
	return strings.TrimSuffix(base, "/") + sitePath
}

// toEntries formats summaries for the views.
func toEntries(list []posts.Summary, locale string, loc *time.Location) []views.Entry {
	out := make([]views.Entry, 0, len(list))
	for _, p := range list {
		e := views.Entry{
			UID:      p.UID,
			Href:     p.Path(),
			Title:    p.Title,
			Subtitle: p.Subtitle,
			Author:   p.Author,
			Date:     p.DisplayDate(locale, loc),
		}
		if p.FirstPublicationDate != nil {
			e.DateTime = p.FirstPublicationDate.UTC().Format(time.RFC3339)
		}
		out = append(out, e)
	}
	return out
}
