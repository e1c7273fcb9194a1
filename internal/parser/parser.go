// Package parser turns uploaded file bytes into a records.Table. It sniffs the
// payload to pick a decoder and delegates the byte-level work to the csv and
// xlsx subpackages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"

	"audience/internal/parser/csv"
	"audience/internal/parser/xlsx"
	"audience/internal/records"
)

// Parser decodes a complete payload into a table.
type Parser interface {
	Parse(r io.Reader) (records.Table, error)
}

// Format identifies the decoder chosen for a payload.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned when the payload is neither delimited text
// nor an xlsx workbook.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options configures decoding for every format.
type Options struct {
	// Comma is the CSV delimiter; ',' when zero.
	Comma rune
	// TrimSpace trims every cell value.
	TrimSpace bool
	// LazyQuotes tolerates stray double quotes in CSV cells.
	LazyQuotes bool
}

// Detect sniffs data and returns the format it should be decoded as. Blank
// input is treated as (empty) CSV.
func Detect(data []byte) (Format, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return FormatCSV, nil
	}
	mt := mimetype.Detect(data)
	switch {
	case isA(mt, "application/x-ole-storage"), isA(mt, "application/vnd.ms-excel"):
		return "", fmt.Errorf("%w: legacy binary spreadsheet (%s)", ErrUnsupportedFormat, mt.String())
	case isA(mt, "application/zip"):
		return FormatXLSX, nil
	case isA(mt, "text/plain"):
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt.String())
	}
}

// New returns the Parser for format.
func New(format Format, opt Options) (Parser, error) {
	switch format {
	case FormatCSV:
		return csv.NewParser(csv.Options{Comma: opt.Comma, TrimSpace: opt.TrimSpace, LazyQuotes: opt.LazyQuotes}), nil
	case FormatXLSX:
		return xlsx.NewParser(xlsx.Options{TrimSpace: opt.TrimSpace}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Decode detects the format of data and parses it. The detected format is
// returned even when parsing fails.
func Decode(data []byte, opt Options) (records.Table, Format, error) {
	format, err := Detect(data)
	if err != nil {
		return records.Table{}, "", err
	}
	p, err := New(format, opt)
	if err != nil {
		return records.Table{}, format, err
	}
	tbl, err := p.Parse(bytes.NewReader(data))
	if err != nil {
		return records.Table{}, format, err
	}
	return tbl, format, nil
}

// isA reports whether mt or one of its ancestors is mime.
func isA(mt *mimetype.MIME, mime string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}
