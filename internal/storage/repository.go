// Package storage persists accepted uploads behind a backend-agnostic
// Repository. Backends register a Factory for their kind at init time; import
// storage/all to enable every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Upload is the metadata row recorded for one accepted upload.
type Upload struct {
	ID             string
	Fingerprint    string
	Filename       string
	TotalRows      int
	HasAllRequired bool
	CreatedAt      time.Time
}

// RowColumns are the row table columns, in the order LoadRows expects.
var RowColumns = []string{"upload_id", "row_num", "payload"}

// UploadsTable holds one Upload per accepted file.
const UploadsTable = "uploads"

// Repository is implemented by every storage backend.
type Repository interface {
	// EnsureSchema creates the uploads and row tables if they do not exist.
	EnsureSchema(ctx context.Context) error
	// SaveUpload inserts the metadata row.
	SaveUpload(ctx context.Context, u Upload) error
	// LoadRows bulk-inserts rows aligned to columns into the row table and
	// returns the number inserted. It has the CopyFn signature.
	LoadRows(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// DeleteUpload removes an upload and all of its rows in one transaction.
	// Deleting an unknown id is not an error.
	DeleteUpload(ctx context.Context, id string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
	// Table is the row table name; it may be schema-qualified.
	Table string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind, replacing any previous one.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend registered for cfg.Kind. An empty Table defaults to
// "upload_rows".
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	if cfg.Table == "" {
		cfg.Table = "upload_rows"
	}
	return f(ctx, cfg)
}
