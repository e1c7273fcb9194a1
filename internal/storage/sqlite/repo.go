// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and the pure-Go modernc.org/sqlite driver. Rows are inserted
// with a prepared statement inside one transaction per batch.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"audience/internal/storage"
	"audience/internal/storage/ddl"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:audience.db?_pragma=busy_timeout(5000)"
	//   "file::memory:"
	DSN string

	// Table is the row table name.
	Table string
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository opens and pings the database.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if cfg.Table == "" {
		cfg.Table = "upload_rows"
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite serializes writers; one connection also keeps an in-memory
	// database alive for the lifetime of the repository.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")

	return &Repository{db: db, cfg: cfg}, nil
}

// sqliteTypes relies on SQLite's type affinity; booleans are 0/1 integers.
var sqliteTypes = ddl.Types{UUID: "TEXT", Text: "TEXT", Int: "INTEGER", Bool: "INTEGER", Time: "TIMESTAMP", Payload: "TEXT"}

// EnsureSchema creates the uploads and row tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts, err := ddl.UploadStatements(storage.UploadsTable, r.cfg.Table, sqliteTypes, sqliteIdent)
	if err != nil {
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveUpload inserts the metadata row.
func (r *Repository) SaveUpload(ctx context.Context, u storage.Upload) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO `+quoteIdent(storage.UploadsTable)+
			` (id, fingerprint, filename, total_rows, has_all_required, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Fingerprint, u.Filename, u.TotalRows, u.HasAllRequired, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert upload: %w", err)
	}
	return nil
}

// LoadRows inserts rows in a single transaction using a prepared INSERT.
// len(row) must equal len(columns) for every row.
func (r *Repository) LoadRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: LoadRows: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	stmtSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(r.cfg.Table),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: LoadRows: row length %d != columns length %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// DeleteUpload removes the upload's rows and metadata row in one transaction.
func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(r.cfg.Table)+` WHERE upload_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+quoteIdent(storage.UploadsTable)+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete upload: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *Repository) Close() { r.db.Close() }

// sqliteIdent double-quotes one identifier segment.
func sqliteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// quoteIdent quotes a possibly schema-qualified identifier.
func quoteIdent(name string) string { return ddl.QuoteFQN(name, sqliteIdent) }

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}
