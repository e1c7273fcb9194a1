// Package sanitize removes markup from user-supplied values before they are
// stored or displayed.
//
//   - Text: strip every tag and attribute (script/style contents included).
//   - RichText: keep a small set of formatting tags, no attributes.
//   - Value: apply Text to every string inside an arbitrary value.
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"audience/internal/records"
)

var (
	strictOnce sync.Once
	strict     *bluemonday.Policy

	richOnce sync.Once
	rich     *bluemonday.Policy
)

// bluemonday escapes quotes in text nodes; they are harmless outside
// attributes, so names like O'Brien are returned as written.
var quoteUnescaper = strings.NewReplacer("&#39;", "'", "&#34;", `"`)

func strictPolicy() *bluemonday.Policy {
	strictOnce.Do(func() { strict = bluemonday.StrictPolicy() })
	return strict
}

func richPolicy() *bluemonday.Policy {
	richOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("b", "i", "em", "strong", "p", "br", "u", "span")
		rich = p
	})
	return rich
}

// Text returns s with all markup removed. Text content is kept; the content of
// script and style elements is dropped. '&', '<' and '>' in the remaining text
// are entity-escaped, which makes Text a fixed point: Text(Text(s)) == Text(s).
func Text(s string) string {
	if s == "" {
		return s
	}
	return quoteUnescaper.Replace(strictPolicy().Sanitize(s))
}

// RichText returns s keeping only b, i, em, strong, p, br, u and span
// elements, all without attributes.
func RichText(s string) string {
	if s == "" {
		return s
	}
	return quoteUnescaper.Replace(richPolicy().Sanitize(s))
}

// Value sanitizes v. Strings go through Text; slices and maps are copied with
// their elements sanitized recursively; every other value is returned
// unchanged.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return Text(t)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = Text(s)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Value(e)
		}
		return out
	case map[string]any:
		return Map(t)
	case records.Record:
		return Record(t)
	default:
		return v
	}
}

// Map returns a sanitized copy of m.
func Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}

// Record returns a sanitized copy of r.
func Record(r records.Record) records.Record {
	if r == nil {
		return nil
	}
	return records.Record(Map(r))
}
