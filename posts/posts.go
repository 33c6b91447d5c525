// Package posts holds the listing's data model: post summaries, the pages
// they arrive in, and the opaque cursor that links one page to the next.
package posts

import (
	"encoding/json"
	"time"

	"github.com/eringen/spacetraveling/prismic"
)

// Cursor is the opaque next-page URL handed out by the content API.
// The empty cursor means there are no further pages.
type Cursor string

// Absent reports whether the cursor points nowhere.
func (c Cursor) Absent() bool { return c == "" }

// Summary is the normalized, minimal representation of a post used for
// listing. Treat it as a value: nothing mutates a Summary after creation.
type Summary struct {
	UID                  string
	FirstPublicationDate *time.Time
	Title                string
	Subtitle             string
	Author               string
}

// Path is the site-relative link to the full post.
func (s Summary) Path() string {
	return "/post/" + s.UID
}

// Page is the result of one fetch, initial or incremental.
type Page struct {
	Cursor  Cursor
	Results []Summary
}

// HasMore reports whether another page can be requested.
func (p Page) HasMore() bool { return !p.Cursor.Absent() }

// wireTimeLayout matches the timestamps emitted by the content API.
const wireTimeLayout = "2006-01-02T15:04:05-0700"

type summaryData struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Author   string `json:"author"`
}

type summaryJSON struct {
	UID                  string      `json:"uid"`
	FirstPublicationDate *string     `json:"first_publication_date"`
	Data                 summaryData `json:"data"`
}

// MarshalJSON writes the summary in the content API's record shape, with
// title, subtitle and author nested under "data".
func (s Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		UID:  s.UID,
		Data: summaryData{Title: s.Title, Subtitle: s.Subtitle, Author: s.Author},
	}
	if s.FirstPublicationDate != nil {
		v := s.FirstPublicationDate.UTC().Format(wireTimeLayout)
		out.FirstPublicationDate = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the record shape written by MarshalJSON. An
// unparseable date is treated as absent.
func (s *Summary) UnmarshalJSON(b []byte) error {
	var in summaryJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Summary{
		UID:      in.UID,
		Title:    in.Data.Title,
		Subtitle: in.Data.Subtitle,
		Author:   in.Data.Author,
	}
	if in.FirstPublicationDate != nil {
		if t, ok := prismic.ParseTime(*in.FirstPublicationDate); ok {
			s.FirstPublicationDate = &t
		}
	}
	return nil
}

type pageJSON struct {
	NextPage *string   `json:"next_page"`
	Results  []Summary `json:"results"`
}

// MarshalJSON writes {"next_page": url|null, "results": [...]}.
func (p Page) MarshalJSON() ([]byte, error) {
	out := pageJSON{Results: p.Results}
	if out.Results == nil {
		out.Results = []Summary{}
	}
	if !p.Cursor.Absent() {
		v := string(p.Cursor)
		out.NextPage = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (p *Page) UnmarshalJSON(b []byte) error {
	var in pageJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*p = Page{Results: in.Results}
	if in.NextPage != nil {
		p.Cursor = Cursor(*in.NextPage)
	}
	return nil
}
