package source

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Local reads a file from disk.
type Local struct{ path string }

func NewLocal(path string) *Local { return &Local{path: path} }

// Open fails fast on a done context; filesystem errors keep os.ErrNotExist
// and friends matchable.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", l.path, err)
	}
	return f, nil
}
