package upload

import "audience/internal/schema"

// SampleSize is the maximum number of rows carried in a Preview.
const SampleSize = 3

// State distinguishes a loaded preview from the "no file loaded" preview.
type State string

const (
	StateEmpty  State = "empty"
	StateLoaded State = "loaded"
)

// Preview summarises one accepted upload.
type Preview struct {
	State State `json:"state"`
	// Columns lists every header in file order, canonicalized where it
	// matched a required column.
	Columns []string `json:"columns"`
	// RequiredColumns and ExtraColumns split Columns (without repeats).
	RequiredColumns []string `json:"requiredColumns"`
	ExtraColumns    []string `json:"extraColumns"`
	SampleRows      []Row    `json:"sampleRows"`
	TotalRows       int      `json:"totalRows"`
	MissingColumns  []string `json:"missingColumns"`
	HasAllRequired  bool     `json:"hasAllRequired"`
	// DuplicateColumns lists columns that appeared more than once; the
	// rightmost occurrence supplied the value.
	DuplicateColumns []string `json:"duplicateColumns,omitempty"`
}

// EmptyPreview is the preview shown when no file is loaded.
func EmptyPreview() Preview {
	return Preview{
		State:           StateEmpty,
		Columns:         []string{},
		RequiredColumns: []string{},
		ExtraColumns:    []string{},
		SampleRows:      []Row{},
		MissingColumns:  []string{},
	}
}

// IsEmpty reports whether p is the "no file loaded" preview.
func (p Preview) IsEmpty() bool { return p.State != StateLoaded }

func buildPreview(columns []string, required schema.ColumnSet, rows []Row, missing, duplicates []string) Preview {
	p := Preview{
		State:            StateLoaded,
		Columns:          columns,
		RequiredColumns:  []string{},
		ExtraColumns:     []string{},
		SampleRows:       rows[:min(SampleSize, len(rows))],
		TotalRows:        len(rows),
		MissingColumns:   missing,
		HasAllRequired:   len(missing) == 0,
		DuplicateColumns: duplicates,
	}
	if p.MissingColumns == nil {
		p.MissingColumns = []string{}
	}

	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		if required.Contains(c) {
			p.RequiredColumns = append(p.RequiredColumns, c)
		} else {
			p.ExtraColumns = append(p.ExtraColumns, c)
		}
	}
	return p
}
