package prismic

import (
	"encoding/json"
	"strings"
	"time"
)

// API is the payload of the repository root endpoint.
type API struct {
	Refs []Ref `json:"refs"`
}

// Ref is a content release pointer.
type Ref struct {
	ID          string `json:"id"`
	Ref         string `json:"ref"`
	Label       string `json:"label"`
	IsMasterRef bool   `json:"isMasterRef"`
}

// Response is one page of search results.
type Response struct {
	Page             int        `json:"page"`
	ResultsPerPage   int        `json:"results_per_page"`
	ResultsSize      int        `json:"results_size"`
	TotalResultsSize int        `json:"total_results_size"`
	TotalPages       int        `json:"total_pages"`
	NextPage         *string    `json:"next_page"`
	PrevPage         *string    `json:"prev_page"`
	Results          []Document `json:"results"`
}

// Next returns the next_page URL, or "" when this is the last page.
func (r *Response) Next() string {
	if r == nil || r.NextPage == nil {
		return ""
	}
	return *r.NextPage
}

// Document is a raw content record. Data is left undecoded because its
// shape depends on the custom type.
type Document struct {
	ID                   string                     `json:"id"`
	UID                  *string                    `json:"uid"`
	Type                 string                     `json:"type"`
	Href                 string                     `json:"href"`
	Tags                 []string                   `json:"tags"`
	FirstPublicationDate *string                    `json:"first_publication_date"`
	LastPublicationDate  *string                    `json:"last_publication_date"`
	Lang                 string                     `json:"lang"`
	Data                 map[string]json.RawMessage `json:"data"`
}

// Field returns the raw value of a data field, or nil.
func (d Document) Field(name string) json.RawMessage {
	if d.Data == nil {
		return nil
	}
	return d.Data[name]
}

// timeLayouts are the timestamp formats the API is known to emit.
var timeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
	time.RFC3339Nano,
}

// ParseTime parses an API timestamp such as 2021-03-25T19:25:28+0000.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
