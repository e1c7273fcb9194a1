// Package xlsx decodes Office Open XML workbooks into records using the first
// worksheet.
package xlsx

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"audience/internal/records"
)

// ErrNoSheets is returned for a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// Options configures the workbook parser.
type Options struct {
	// TrimSpace trims leading/trailing spaces from each cell value.
	TrimSpace bool
}

// Parser reads the first sheet of a workbook. The first non-blank row of that
// sheet is the header row. Cell values are the displayed (formatted) text.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse decodes r as an xlsx workbook.
func (p *Parser) Parse(r io.Reader) (records.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return records.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return records.Table{}, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return records.Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	// Leading blank rows are not part of the table range.
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return records.Table{}, nil
	}

	b := records.NewBuilder(rows[start], p.opt.TrimSpace)
	for _, row := range rows[start+1:] {
		b.Add(row)
	}
	return b.Table(), nil
}

func blank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
