// Package ddl renders the CREATE TABLE statements for the upload tables. The
// table model is dialect-neutral; backends supply identifier quoting and
// column types.
package ddl

import (
	"fmt"
	"strings"
)

// ColumnDef is one column. Name is unquoted; Default is raw SQL.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// ForeignKey links Column to RefTable(RefColumn).
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// TableDef is a table with a possibly schema-qualified FQN like "crm.upload_rows".
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	ForeignKeys []ForeignKey
}

// QuoteFunc quotes a single identifier segment.
type QuoteFunc func(ident string) string

// QuoteFQN quotes each dot-separated segment of name with q.
func QuoteFQN(name string, q QuoteFunc) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q(p)
	}
	return strings.Join(parts, ".")
}

// CreateTable renders an idempotent CREATE TABLE IF NOT EXISTS statement.
// Primary key and foreign key constraints are emitted as table-level
// clauses, which every supported dialect honours.
func CreateTable(t TableDef, q QuoteFunc) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: table %s has no columns", fqn)
	}

	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	var pks []string
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(q(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		defs = append(defs, sb.String())
		if c.PrimaryKey {
			pks = append(pks, q(name))
		}
	}
	if len(pks) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pks, ", ")+")")
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			q(fk.Column), QuoteFQN(fk.RefTable, q), q(fk.RefColumn)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", QuoteFQN(fqn, q), strings.Join(defs, ",\n  ")), nil
}

// Types maps the upload tables' logical column types to a dialect.
type Types struct {
	UUID    string
	Text    string
	Int     string
	Bool    string
	Time    string
	Payload string
}

// UploadTables describes the uploads metadata table and the row table that
// references it, in creation order.
func UploadTables(uploadsTable, rowTable string, ty Types) []TableDef {
	return []TableDef{
		{
			FQN: uploadsTable,
			Columns: []ColumnDef{
				{Name: "id", SQLType: ty.UUID, PrimaryKey: true},
				{Name: "fingerprint", SQLType: ty.Text},
				{Name: "filename", SQLType: ty.Text, Default: "''"},
				{Name: "total_rows", SQLType: ty.Int},
				{Name: "has_all_required", SQLType: ty.Bool},
				{Name: "created_at", SQLType: ty.Time},
			},
		},
		{
			FQN: rowTable,
			Columns: []ColumnDef{
				{Name: "upload_id", SQLType: ty.UUID, PrimaryKey: true},
				{Name: "row_num", SQLType: ty.Int, PrimaryKey: true},
				{Name: "payload", SQLType: ty.Payload},
			},
			ForeignKeys: []ForeignKey{{Column: "upload_id", RefTable: uploadsTable, RefColumn: "id"}},
		},
	}
}

// UploadStatements renders UploadTables with q.
func UploadStatements(uploadsTable, rowTable string, ty Types, q QuoteFunc) ([]string, error) {
	tables := UploadTables(uploadsTable, rowTable, ty)
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		s, err := CreateTable(t, q)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
