package photostore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and Delete when no photo is stored under key.
var ErrNotFound = errors.New("photo not found")

// PhotoStore persists uploaded images under a caller-chosen key. Saving to an
// existing key replaces the previous contents.
type PhotoStore interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
