// Package postgres implements a Postgres storage.Repository on pgx v5. Row
// batches are written with COPY FROM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"audience/internal/storage"
	"audience/internal/storage/ddl"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // row table, optionally schema-qualified, e.g. "public.upload_rows"
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository constructs a pooled Repository. Connections are established
// lazily by the pool.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	if cfg.Table == "" {
		cfg.Table = "upload_rows"
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, nil
}

// pgTypes keeps payload as text so CopyFrom sends the encoded JSON unchanged.
var pgTypes = ddl.Types{UUID: "uuid", Text: "text", Int: "integer", Bool: "boolean", Time: "timestamptz", Payload: "text"}

// EnsureSchema creates the uploads and row tables.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	stmts, err := ddl.UploadStatements(storage.UploadsTable, r.cfg.Table, pgTypes, pgIdent)
	if err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", describe(err))
		}
	}
	return nil
}

// SaveUpload inserts the metadata row.
func (r *Repository) SaveUpload(ctx context.Context, u storage.Upload) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+pgFQN(storage.UploadsTable)+
			` (id, fingerprint, filename, total_rows, has_all_required, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Fingerprint, u.Filename, u.TotalRows, u.HasAllRequired, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert upload: %w", describe(err))
	}
	return nil
}

// LoadRows copies rows into the row table.
func (r *Repository) LoadRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("postgres: LoadRows: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := r.pool.CopyFrom(ctx, tableIdent(r.cfg.Table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("postgres: copy rows: %w", describe(err))
	}
	return n, nil
}

// DeleteUpload removes the upload's rows and metadata row in one transaction.
func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+pgFQN(r.cfg.Table)+` WHERE upload_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+pgFQN(storage.UploadsTable)+` WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: delete upload: %w", describe(err))
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// describe surfaces the server-side detail of a PgError.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s: %s)", err, pgErr.SQLState(), pgErr.Detail)
	}
	return err
}

// tableIdent splits a possibly schema-qualified name for CopyFrom.
func tableIdent(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

// pgIdent double-quotes an identifier, doubling embedded quotes.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.upload_rows" to
// "public"."upload_rows".
func pgFQN(name string) string { return ddl.QuoteFQN(name, pgIdent) }

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return NewRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
	})
}
