// Package schema holds the column vocabularies an uploaded audience file is
// checked against.
package schema

import (
	"fmt"
	"strings"
)

// Canonical column names of the customer vocabulary.
const (
	ColCustomerID = "customerId"
	ColName       = "name"
	ColPhone      = "phone"
	ColEmail      = "email"
	ColAge        = "age"
	ColCity       = "city"
	ColCountry    = "country"
	ColOccupation = "occupation"
)

// Vocabulary names accepted by ByName.
const (
	VocabularyCustomer = "customer"
	VocabularyLegacy   = "legacy"
)

// ColumnSet is an ordered set of required canonical column names. Matching
// against uploaded headers ignores case and surrounding whitespace.
type ColumnSet struct {
	names []string
	index map[string]int // key(name) -> position in names
}

// NewColumnSet builds a ColumnSet from names, keeping the first spelling of
// any names that collide once keyed. Blank names are rejected.
func NewColumnSet(names ...string) (ColumnSet, error) {
	cs := ColumnSet{
		names: make([]string, 0, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		k := Key(n)
		if k == "" {
			return ColumnSet{}, fmt.Errorf("schema: column %d is blank", i)
		}
		if _, dup := cs.index[k]; dup {
			continue
		}
		cs.index[k] = len(cs.names)
		cs.names = append(cs.names, strings.TrimSpace(n))
	}
	return cs, nil
}

// MustColumnSet is NewColumnSet that panics on error. Intended for package
// level vocabularies.
func MustColumnSet(names ...string) ColumnSet {
	cs, err := NewColumnSet(names...)
	if err != nil {
		panic(err)
	}
	return cs
}

// Customer is the default vocabulary used by the upload component.
func Customer() ColumnSet {
	return MustColumnSet(ColCustomerID, ColName, ColPhone, ColEmail, ColAge, ColCity, ColCountry, ColOccupation)
}

// Legacy is the older snake_case vocabulary with a single location column.
func Legacy() ColumnSet {
	return MustColumnSet("customer_id", ColName, ColPhone, ColEmail, ColAge, "location", ColOccupation)
}

// ByName resolves a named vocabulary.
func ByName(name string) (ColumnSet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", VocabularyCustomer:
		return Customer(), nil
	case VocabularyLegacy:
		return Legacy(), nil
	default:
		return ColumnSet{}, fmt.Errorf("schema: unknown vocabulary %q", name)
	}
}

// Key is the comparison form of a column name: trimmed and lowercased.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Names returns the canonical names in order. The slice is a copy.
func (cs ColumnSet) Names() []string {
	return append([]string(nil), cs.names...)
}

// Len returns the number of required columns.
func (cs ColumnSet) Len() int { return len(cs.names) }

// IsZero reports whether cs was never initialised.
func (cs ColumnSet) IsZero() bool { return cs.index == nil }

// Canonical returns the canonical spelling for header, if header matches one
// of the required columns.
func (cs ColumnSet) Canonical(header string) (string, bool) {
	i, ok := cs.index[Key(header)]
	if !ok {
		return "", false
	}
	return cs.names[i], true
}

// Contains reports whether name is one of the canonical spellings.
func (cs ColumnSet) Contains(name string) bool {
	i, ok := cs.index[Key(name)]
	return ok && cs.names[i] == name
}
