// Package blobstore keeps the bytes of uploaded files under opaque keys.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store saves, reads and removes blobs by key. Open returns
// common.ErrorNotFound for a missing key.
type Store interface {
	// Save writes r under key and returns the number of bytes stored.
	Save(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh storage key grouped by upload day.
func NewKey(now time.Time) string {
	return fmt.Sprintf("files/%d/%02d/%02d/%v", now.Year(), now.Month(), now.Day(), uuid.New())
}
