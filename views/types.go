package views

// SiteConfig holds site-wide settings the templates read.
// Every handler passes this to templates so nothing is hardcoded.
type SiteConfig struct {
	Name        string // SITE_NAME  (default "spacetraveling")
	URL         string // SITE_URL   (default "http://localhost:3000")
	Description string // SITE_DESCRIPTION
	Lang        string // html lang attribute, from LOCALE
}

// PageMeta carries per-page OpenGraph and SEO metadata into the <head> template.
type PageMeta struct {
	Title       string
	Description string
	URL         string // canonical + og:url
	OGType      string // "website" or "article"
}

// Entry is one post summary, already formatted for display.
type Entry struct {
	UID      string
	Href     string // /post/{uid}
	Title    string
	Subtitle string
	Author   string
	Date     string // localized, e.g. "25 mar 2021"; empty when unpublished
	DateTime string // machine-readable value for <time datetime>
}

// Listing is everything the home page and the load-more fragment render.
type Listing struct {
	Site    SiteConfig
	Meta    PageMeta
	Entries []Entry
	HasMore bool
	MoreURL string
	Error   string // inline pagination error; the control turns into a retry
	CSRF    string // token posted back with the load-more control
}
