// Package storage keeps the raw bytes of engine files. Rows in the database
// only hold the key.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("blob not found")

// BlobStore stores immutable blobs by key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
