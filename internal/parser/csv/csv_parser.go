// Package csv decodes delimited text uploads into records. Input is expected
// to be small enough to hold in memory; it is normalised to UTF-8 first so
// exports from spreadsheet tools in legacy code pages parse cleanly.
package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"audience/internal/records"
)

// Options configures the CSV parser behavior. All fields are optional; sensible
// defaults are applied when a field is zero.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// LazyQuotes accepts a bare " inside an unquoted field (O"Brien, 5" screen)
	// and a non-doubled " inside a quoted field.
	LazyQuotes bool
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse reads all of r and returns the header row and data rows. Input
// without any header row yields an empty Table and no error. Unless
// LazyQuotes is set, a malformed quoted field is returned as an error wrapping
// *csv.ParseError.
func (p *Parser) Parse(r io.Reader) (records.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return records.Table{}, fmt.Errorf("read csv: %w", err)
	}
	data, err := ToUTF8(raw)
	if err != nil {
		return records.Table{}, fmt.Errorf("decode csv charset: %w", err)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.LazyQuotes = p.opt.LazyQuotes
	// Ragged rows are padded by the builder rather than rejected.
	cr.FieldsPerRecord = -1

	h, err := cr.Read()
	if err == io.EOF {
		return records.Table{}, nil
	}
	if err != nil {
		return records.Table{}, fmt.Errorf("read csv header: %w", err)
	}
	b := records.NewBuilder(StripHeaderBOM(h), p.opt.TrimSpace)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records.Table{}, fmt.Errorf("read csv row: %w", err)
		}
		b.Add(row)
	}
	return b.Table(), nil
}

// ToUTF8 normalises data to UTF-8. A UTF-8 BOM is dropped, UTF-16 input with a
// BOM is transcoded, and anything else that is not valid UTF-8 is treated as
// Windows-1252.
func ToUTF8(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(out) {
		return out, nil
	}
	return charmap.Windows1252.NewDecoder().Bytes(out)
}
