// Package artifact persists trained models, report documents and panel
// exports on a blob backend.
package artifact

import (
	"context"
	"io"
	"strings"
)

// Backend stores opaque objects by key.
type Backend interface {
	// Put streams r to key, replacing any previous object.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get returns a stream for key. The caller must close it. A missing
	// object yields ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	return nil
}

// Tables reads raw input tables stored under a key prefix of a Backend.
type Tables struct {
	Backend Backend
	Prefix  string
}

// Open returns the table stored at Prefix/name.
func (t Tables) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := name
	if t.Prefix != "" {
		key = strings.TrimSuffix(t.Prefix, "/") + "/" + name
	}
	return t.Backend.Get(ctx, key)
}
