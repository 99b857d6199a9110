package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultDirPerm  = 0755
	defaultFilePerm = 0644
)

// Local stores artifacts as files under Root.
type Local struct {
	Root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &Local{Root: root}, nil
}

func (l *Local) path(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.Root, filepath.FromSlash(key)), nil
}

// Put writes r to a temp file next to the target, syncs it and renames it in place.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) (Object, error) {
	full, err := l.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), defaultDirPerm); err != nil {
		return Object{}, fmt.Errorf("create directory for %s: %w", key, err)
	}

	tmpF, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*.tmp")
	if err != nil {
		return Object{}, fmt.Errorf("create tmp file for %s: %w", key, err)
	}
	discard := func() {
		_ = tmpF.Close()
		_ = os.Remove(tmpF.Name())
	}

	h := xxhash.New()
	n, err := io.Copy(io.MultiWriter(tmpF, h), &ctxReader{ctx: ctx, r: r})
	if err != nil {
		discard()
		return Object{}, fmt.Errorf("could not write to tmp file %s: %w", tmpF.Name(), err)
	}
	if err := tmpF.Sync(); err != nil {
		discard()
		return Object{}, fmt.Errorf("could not sync tmp file %s: %w", tmpF.Name(), err)
	}
	if err := tmpF.Close(); err != nil {
		_ = os.Remove(tmpF.Name())
		return Object{}, fmt.Errorf("could not close tmp file %s: %w", tmpF.Name(), err)
	}
	if err := os.Chmod(tmpF.Name(), defaultFilePerm); err != nil {
		_ = os.Remove(tmpF.Name())
		return Object{}, err
	}
	if err := os.Rename(tmpF.Name(), full); err != nil {
		_ = os.Remove(tmpF.Name())
		return Object{}, fmt.Errorf("could not replace %s with %s: %w", full, tmpF.Name(), err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Key:      key,
		Size:     n,
		Checksum: hex.EncodeToString(h.Sum(nil)),
		ModTime:  info.ModTime(),
	}, nil
}

// Stat reports size and modification time without reading the file, so the
// checksum is left empty.
func (l *Local) Stat(_ context.Context, key string) (Object, error) {
	full, err := l.path(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Object{}, err
	}
	return Object{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

// Delete removes key; deleting a missing key is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	full, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (l *Local) Location(key string) string {
	full, err := l.path(key)
	if err != nil {
		return key
	}
	return full
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
