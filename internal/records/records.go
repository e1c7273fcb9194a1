// Package records defines the untyped row representation shared by the
// parsers and transformers.
package records

// Record is a single parsed row keyed by column header. Values are strings,
// or nil for empty cells.
type Record map[string]any

// Table is the ordered result of decoding an uploaded file: the header row in
// file order plus one Record per data row.
type Table struct {
	Headers []string
	Rows    []Record
}

// Len returns the number of data rows.
func (t Table) Len() int { return len(t.Rows) }

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
