// Package transformer defines the row-transformation stage of the upload
// pipeline. Transformers run in order over the full set of parsed rows.
package transformer

import "audience/internal/records"

// Transformer rewrites a batch of records. Implementations may modify the
// slice in place and return it.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply feeds the output of each transformer into the next.
func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
