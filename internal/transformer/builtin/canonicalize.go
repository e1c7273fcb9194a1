// Package builtin contains the transformers used by the upload pipeline.
package builtin

import (
	"strings"

	"audience/internal/records"
	"audience/internal/sanitize"
	"audience/internal/schema"
)

// Canonicalize re-keys rows so that any header matching a required column
// (ignoring case and surrounding whitespace) uses the required column's
// canonical spelling. Other headers are kept as written after markup is
// stripped with sanitize.Text; a header that is nothing but markup becomes
// "col_N".
//
// The header analysis happens once in NewCanonicalize; Apply only re-keys.
// When two headers map to the same output key, the later column's value wins
// in every row and the key is reported by Collisions.
type Canonicalize struct {
	headers    []string
	keys       []string // output key per header index
	missing    []string
	collisions []string
}

// NewCanonicalize analyses headers against required.
func NewCanonicalize(required schema.ColumnSet, headers []string) *Canonicalize {
	c := &Canonicalize{
		headers: headers,
		keys:    make([]string, len(headers)),
	}

	observed := make(map[string]string, len(headers)) // key(header) -> original header
	seen := make(map[string]int, len(headers))        // output key -> occurrences
	for i, h := range headers {
		observed[schema.Key(h)] = h

		out := sanitize.Text(h)
		if canon, ok := required.Canonical(h); ok {
			out = canon
		} else if strings.TrimSpace(out) == "" {
			out = records.KeyFor(i, nil)
		}
		c.keys[i] = out

		seen[out]++
		if seen[out] == 2 {
			c.collisions = append(c.collisions, out)
		}
	}

	for _, name := range required.Names() {
		if _, ok := observed[schema.Key(name)]; !ok {
			c.missing = append(c.missing, name)
		}
	}
	return c
}

// Columns returns the canonicalized header list in file order.
func (c *Canonicalize) Columns() []string { return append([]string(nil), c.keys...) }

// Missing returns the required columns with no matching header, in
// required-set order.
func (c *Canonicalize) Missing() []string { return append([]string(nil), c.missing...) }

// Collisions returns output keys produced by more than one header, in
// first-seen order.
func (c *Canonicalize) Collisions() []string { return append([]string(nil), c.collisions...) }

// Apply replaces every record with a re-keyed copy.
func (c *Canonicalize) Apply(in []records.Record) []records.Record {
	for i, rec := range in {
		out := make(records.Record, len(rec))
		for j, h := range c.headers {
			if v, ok := rec[h]; ok {
				out[c.keys[j]] = v
			}
		}
		in[i] = out
	}
	return in
}
