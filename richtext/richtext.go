// Package richtext flattens CMS field values to plain text.
//
// A field is either a Key Text value (a JSON string) or a Rich Text value
// (a JSON array of blocks, each with a "text" member). Listing pages only
// need the text, so spans and block types are ignored.
package richtext

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Block is one Rich Text block.
type Block struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// Span marks formatting over [Start, End) of a block's text.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
}

// AsText returns the plain text of a field value. Rich Text blocks are
// joined with sep. Null, missing and unrecognized values yield "".
func AsText(raw json.RawMessage, sep string) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '[':
		var blocks []Block
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ""
		}
		return Join(blocks, sep)
	default:
		return ""
	}
}

// Join concatenates the non-empty block texts with sep.
func Join(blocks []Block, sep string) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, sep)
}
