// Package views holds the default listing templates. They are plain
// html/template files embedded in the binary and handed out as templ
// components, so an App can swap any of them for its own templ views.
package views

import (
	"embed"
	"html/template"

	"github.com/a-h/templ"
)

//go:embed templates/*.html
var templatesFS embed.FS

var tmpl = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Home renders the full listing page.
func Home(l Listing) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("home"), l)
}

// MorePosts renders the load-more fragment: the newly loaded entries followed
// by the next control, or an inline error with a retry control.
func MorePosts(l Listing) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("more"), l)
}

type statusPage struct {
	Site    SiteConfig
	Title   string
	Message string
}

// NotFound renders the 404 page.
func NotFound(site SiteConfig) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("status"), statusPage{
		Site:    site,
		Title:   "Página não encontrada",
		Message: "O conteúdo que você procura não existe.",
	})
}

// ServerError renders the 500 page.
func ServerError(site SiteConfig) templ.Component {
	return templ.FromGoHTML(tmpl.Lookup("status"), statusPage{
		Site:    site,
		Title:   "Algo deu errado",
		Message: "Não foi possível carregar os posts agora. Tente novamente em instantes.",
	})
}
