// Package storage is the blob store for order assets. Two drivers exist:
// "local" (filesystem) and "s3" (AWS S3 or any S3-compatible service such
// as MinIO or R2).
//
//	disk, err := storage.New(storage.Config{Driver: "local", LocalRoot: "storage"})
//	err = disk.Put(ctx, "orders/VO-1/a1", bytes.NewReader(data), int64(len(data)), "video/mp4")
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned when a key has no object.
var ErrNotExist = errors.New("storage: object does not exist")

// Disk is the driver interface.
type Disk interface {
	// Put stores size bytes read from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open streams the object at key. Caller must close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// URL is the public location of key, when the disk is publicly served.
	URL(key string) string
}
