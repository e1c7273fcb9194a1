// Package source opens upload payloads by reference: a local path or an
// http(s) URL. The CLI uses it so files and remote exports validate the same
// way.
package source

import (
	"context"
	"io"
	"strings"
)

// Source yields the bytes of one upload.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// IsURL reports whether ref names a remote payload.
func IsURL(ref string) bool {
	r := strings.ToLower(ref)
	return strings.HasPrefix(r, "http://") || strings.HasPrefix(r, "https://")
}

// For returns the Source for ref. URLs are fetched with c; a nil c gets
// default settings.
func For(ref string, c *Client) Source {
	if IsURL(ref) {
		if c == nil {
			c = NewClient(ClientConfig{})
		}
		return c.Remote(ref)
	}
	return NewLocal(ref)
}
