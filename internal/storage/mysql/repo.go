// Package mysql implements a MySQL-backed storage.Repository on database/sql
// with the go-sql-driver/mysql connector. Batches are written with a single
// multi-row INSERT.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"audience/internal/storage"
	"audience/internal/storage/ddl"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN in go-sql-driver format, e.g. "user:pass@tcp(127.0.0.1:3306)/audience".
	DSN string
	// Table is the row table name, optionally "schema.table".
	Table string
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository parses the DSN, opens a pool and pings the server.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	dsn.ParseTime = true
	if dsn.Loc == nil {
		dsn.Loc = time.UTC
	}

	conn, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return newWithDB(db, cfg), nil
}

func newWithDB(db *sql.DB, cfg Config) *Repository {
	if cfg.Table == "" {
		cfg.Table = "upload_rows"
	}
	return &Repository{db: db, cfg: cfg}
}

// mysqlTypes stores the payload as JSON so rows can be queried server-side.
var mysqlTypes = ddl.Types{UUID: "CHAR(36)", Text: "VARCHAR(255)", Int: "INT", Bool: "BOOLEAN", Time: "DATETIME(6)", Payload: "JSON"}

// EnsureSchema creates the uploads and row tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts, err := ddl.UploadStatements(storage.UploadsTable, r.cfg.Table, mysqlTypes, myIdent)
	if err != nil {
		return fmt.Errorf("mysql: ensure schema: %w", err)
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("mysql: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveUpload inserts the metadata row.
func (r *Repository) SaveUpload(ctx context.Context, u storage.Upload) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO "+myFQN(storage.UploadsTable)+
			" (id, fingerprint, filename, total_rows, has_all_required, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Fingerprint, u.Filename, u.TotalRows, u.HasAllRequired, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("mysql: insert upload: %w", err)
	}
	return nil
}

// LoadRows writes rows with one multi-row INSERT.
func (r *Repository) LoadRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: LoadRows: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	query := insertSQL(r.cfg.Table, columns, len(rows))
	args := make([]any, 0, len(rows)*len(columns))
	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mysql: LoadRows: row length %d != columns length %d", len(row), len(columns))
		}
		args = append(args, row...)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mysql: insert rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(len(rows)), nil
	}
	return n, nil
}

// DeleteUpload removes the upload's rows and metadata row in one transaction.
func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mysql: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+myFQN(r.cfg.Table)+" WHERE upload_id = ?", id); err != nil {
		return fmt.Errorf("mysql: delete rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+myFQN(storage.UploadsTable)+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("mysql: delete upload: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mysql: commit: %w", err)
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { r.db.Close() }

// insertSQL builds INSERT INTO t (c1, c2) VALUES (?, ?), (?, ?) for n rows.
func insertSQL(table string, columns []string, n int) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = myIdent(c)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", myFQN(table), strings.Join(cols, ", "))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// myIdent backtick-quotes an identifier, doubling embedded backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// myFQN quotes each dot-separated segment of name.
func myFQN(name string) string { return ddl.QuoteFQN(name, myIdent) }

func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}
