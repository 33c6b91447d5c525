package posts

import (
	"time"

	"github.com/goodsign/monday"
	"golang.org/x/text/language"
)

// DefaultLocale is used when no locale is configured or none matches.
const DefaultLocale = "pt-BR"

var supportedLocales = []language.Tag{
	language.BrazilianPortuguese,
	language.English,
	language.Spanish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// dateLocales is indexed like supportedLocales.
var dateLocales = []monday.Locale{
	monday.LocalePtBR,
	monday.LocaleEnUS,
	monday.LocaleEsES,
}

const dateLayout = "02 Jan 2006"

// MatchLocale returns the index into the supported locales that best fits
// the given BCP 47 tag. Unknown or unparseable tags fall back to pt-BR.
func MatchLocale(locale string) int {
	if locale == "" {
		return 0
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return 0
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return 0
	}
	return idx
}

// FormatDate renders t as "dd MMM yyyy" in the given locale, e.g.
// "25 mar 2021" for pt-BR. loc selects the calendar day; nil means UTC.
func FormatDate(t time.Time, locale string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return monday.Format(t.In(loc), dateLayout, dateLocales[MatchLocale(locale)])
}

// DisplayDate formats the summary's first publication date, or returns ""
// when the post has never been published.
func (s Summary) DisplayDate(locale string, loc *time.Location) string {
	if s.FirstPublicationDate == nil {
		return ""
	}
	return FormatDate(*s.FirstPublicationDate, locale, loc)
}
