package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// File persists each key as one file under a data directory. This is the
// default backend: offline-first, no external services.
type File struct {
	dir string
}

// NewFile creates the data directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	// Keys are storage names like "freilog.overlay"; hash anything that
	// would escape the directory.
	safe := filepath.Base(key)
	if safe != key || safe == "." || safe == ".." {
		sum := sha1.Sum([]byte(key))
		safe = hex.EncodeToString(sum[:])
	}
	return filepath.Join(f.dir, safe+".json")
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return string(raw), nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (f *File) Ping(context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *File) Close() error { return nil }
