// Package store persists downloaded artifacts on the local filesystem or in an
// S3-compatible bucket, and records them in a manifest.
package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("object not found")

// Object describes a stored artifact.
type Object struct {
	Key      string
	Size     int64
	Checksum string // xxhash64, hex
	ModTime  time.Time
}

// Store is an artifact backend. Put must be atomic: readers never observe a
// partially written object.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (Object, error)
	// Stat does not read the object; Checksum is set only when the backend
	// recorded it at write time.
	Stat(ctx context.Context, key string) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Location renders a human-readable address of key.
	Location(key string) string
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.New("object key must not contain ..")
		}
	}
	return key, nil
}
