package upload

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"

	"audience/internal/records"
	"audience/internal/schema"
)

// Row is one sanitized data row. Canonical holds the values of required
// columns under their canonical names; Extra holds every other column under
// its original header. A key is never present in both.
type Row struct {
	Canonical map[string]any
	Extra     map[string]any
}

func newRow(rec records.Record, required schema.ColumnSet) Row {
	r := Row{
		Canonical: make(map[string]any, required.Len()),
		Extra:     make(map[string]any),
	}
	for k, v := range rec {
		if required.Contains(k) {
			r.Canonical[k] = v
		} else {
			r.Extra[k] = v
		}
	}
	return r
}

// Get returns the value stored under key in either bag.
func (r Row) Get(key string) (any, bool) {
	if v, ok := r.Canonical[key]; ok {
		return v, true
	}
	v, ok := r.Extra[key]
	return v, ok
}

// Record flattens r back into a single map.
func (r Row) Record() records.Record {
	out := make(records.Record, len(r.Canonical)+len(r.Extra))
	for k, v := range r.Extra {
		out[k] = v
	}
	for k, v := range r.Canonical {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes r as one flat object.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}

// Customer is the typed view of a row from the customer vocabulary.
type Customer struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Age        int    `json:"age"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Occupation string `json:"occupation"`
}

// Customer converts the canonical values of r. Absent or empty values give
// zero fields; an age that is not an integer is an error.
func (r Row) Customer() (Customer, error) {
	str := func(key string) string { return cast.ToString(r.Canonical[key]) }

	c := Customer{
		CustomerID: str(schema.ColCustomerID),
		Name:       str(schema.ColName),
		Phone:      str(schema.ColPhone),
		Email:      str(schema.ColEmail),
		City:       str(schema.ColCity),
		Country:    str(schema.ColCountry),
		Occupation: str(schema.ColOccupation),
	}
	if v := r.Canonical[schema.ColAge]; v != nil {
		age, err := cast.ToIntE(v)
		if err != nil {
			return c, fmt.Errorf("upload: column %s: %w", schema.ColAge, err)
		}
		c.Age = age
	}
	return c, nil
}
