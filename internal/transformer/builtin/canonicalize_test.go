package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"audience/internal/records"
	"audience/internal/schema"
)

/*
TestCanonicalize_Columns verifies header matching ignores case and surrounding
whitespace on both sides, keeps custom columns verbatim and in order, and
computes missing columns as the set difference in required order.
*/
func TestCanonicalize_Columns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		required    schema.ColumnSet
		headers     []string
		wantColumns []string
		wantMissing []string
	}{
		{
			name:        "all present mixed case",
			required:    schema.Customer(),
			headers:     []string{"CustomerId", "NAME", " Phone", "EMAIL ", "age", "City", "COUNTRY", "Occupation", "segment"},
			wantColumns: []string{"customerId", "name", "phone", "email", "age", "city", "country", "occupation", "segment"},
		},
		{
			name:        "unrelated headers",
			required:    schema.Customer(),
			headers:     []string{"name", "product"},
			wantColumns: []string{"name", "product"},
			wantMissing: []string{"customerId", "phone", "email", "age", "city", "country", "occupation"},
		},
		{
			name:        "legacy vocabulary",
			required:    schema.Legacy(),
			headers:     []string{"Customer_ID", "name", "phone", "email", "age", "Location", "occupation"},
			wantColumns: []string{"customer_id", "name", "phone", "email", "age", "location", "occupation"},
		},
		{
			name:        "required side whitespace",
			required:    schema.MustColumnSet(" Email "),
			headers:     []string{"email"},
			wantColumns: []string{"Email"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCanonicalize(tt.required, tt.headers)
			assert.Equal(t, tt.wantColumns, c.Columns())
			assert.Equal(t, tt.wantMissing, c.Missing())
			assert.Empty(t, c.Collisions())
		})
	}
}

func TestCanonicalize_MarkupInHeaders(t *testing.T) {
	t.Parallel()

	c := NewCanonicalize(schema.MustColumnSet("email"), []string{"<svg onload=alert(1)>", "<b>Plan</b>", "EMAIL"})
	assert.Equal(t, []string{"col_0", "Plan", "email"}, c.Columns())

	got := c.Apply([]records.Record{{"<svg onload=alert(1)>": "x", "<b>Plan</b>": "gold", "EMAIL": "a@x"}})
	assert.Equal(t, records.Record{"col_0": "x", "Plan": "gold", "email": "a@x"}, got[0])
}

func TestCanonicalize_ApplyRekeys(t *testing.T) {
	t.Parallel()

	c := NewCanonicalize(schema.Customer(), []string{"EMAIL", "Notes"})
	out := c.Apply([]records.Record{{"EMAIL": "a@example.com", "Notes": nil}})

	assert.Equal(t, []records.Record{{"email": "a@example.com", "Notes": nil}}, out)
}

/*
TestCanonicalize_CollisionLastWriteWins documents the duplicate-header policy:
the later column overwrites the earlier one and the key is reported.
*/
func TestCanonicalize_CollisionLastWriteWins(t *testing.T) {
	t.Parallel()

	headers := []string{"Email", "name", " email "}
	c := NewCanonicalize(schema.Customer(), headers)

	assert.Equal(t, []string{"email", "name", "email"}, c.Columns())
	assert.Equal(t, []string{"email"}, c.Collisions())

	out := c.Apply([]records.Record{{"Email": "first@example.com", "name": "Ann", " email ": "second@example.com"}})
	assert.Equal(t, records.Record{"email": "second@example.com", "name": "Ann"}, out[0])
}

func TestSanitize_Apply(t *testing.T) {
	t.Parallel()

	in := []records.Record{{"name": "<script>alert(1)</script>John", "age": nil}}
	out := Sanitize{}.Apply(in)
	assert.Equal(t, records.Record{"name": "John", "age": nil}, out[0])
}
