package records

import (
	"fmt"
	"strings"
)

// Builder accumulates data rows against a fixed header row. Parsers feed it
// raw cell strings; it handles ragged rows, blank rows and empty cells the
// same way for every input format.
type Builder struct {
	headers []string
	trim    bool
	rows    []Record
	widened bool
}

// NewBuilder returns a Builder for header. Blank header cells are replaced by
// a synthetic "col_N" key (N is the zero-based column index).
func NewBuilder(header []string, trim bool) *Builder {
	h := make([]string, len(header))
	for i, col := range header {
		if strings.TrimSpace(col) == "" {
			h[i] = synthKey(i)
			continue
		}
		h[i] = col
	}
	return &Builder{headers: h, trim: trim}
}

// Add appends one data row. It returns false, and records nothing, when every
// cell is empty. Short rows leave the trailing columns nil; a row wider than
// the header row extends it with "col_N" headers.
func (b *Builder) Add(cells []string) bool {
	if isBlank(cells) {
		return false
	}
	for i := len(b.headers); i < len(cells); i++ {
		b.headers = append(b.headers, synthKey(i))
		b.widened = true
	}
	rec := make(Record, len(b.headers))
	for i := range b.headers {
		var val any
		if i < len(cells) {
			s := cells[i]
			if b.trim {
				s = strings.TrimSpace(s)
			}
			val = emptyToNil(s)
		}
		rec[KeyFor(i, b.headers)] = val
	}
	b.rows = append(b.rows, rec)
	return true
}

// Table returns the accumulated table. If a late row widened the header row,
// earlier rows gain nil values for the added columns.
func (b *Builder) Table() Table {
	if b.widened {
		for _, rec := range b.rows {
			for _, h := range b.headers {
				if _, ok := rec[h]; !ok {
					rec[h] = nil
				}
			}
		}
		b.widened = false
	}
	return Table{Headers: b.headers, Rows: b.rows}
}

// KeyFor returns the column key for index idx, using headers when available,
// otherwise synthesizing a "col_N" name.
func KeyFor(idx int, headers []string) string {
	if idx < len(headers) && headers[idx] != "" {
		return headers[idx]
	}
	return synthKey(idx)
}

func synthKey(idx int) string { return fmt.Sprintf("col_%d", idx) }

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
