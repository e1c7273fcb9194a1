package builtin

import (
	"audience/internal/records"
	"audience/internal/sanitize"
)

// Sanitize strips markup from every string value of every record.
type Sanitize struct{}

// Apply replaces each record with its sanitized copy.
func (Sanitize) Apply(in []records.Record) []records.Record {
	for i, rec := range in {
		in[i] = sanitize.Record(rec)
	}
	return in
}
